package document

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion    = 1
	documentFileName = "document.json"
	conceptLogName   = "concept_history.jsonl"
)

var ErrNotFound = errors.New("document not found")

// Store persists documents as JSON under a base directory, one folder per
// document id. Concept revisions go to an append-only log next to the
// document; the log is never rewritten.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0o755)
}

func (s *Store) documentDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

type documentFile struct {
	SchemaVersion int      `json:"schema_version"`
	Document      Document `json:"document"`
}

// Create makes a new empty document in the concept stage and persists it.
func (s *Store) Create(title string) (*Document, error) {
	now := time.Now().UTC()
	doc := &Document{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Stage:     StageConcept,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Load reads a document from disk. A missing folder is ErrNotFound; malformed
// JSON surfaces as an error rather than a half-parsed document.
func (s *Store) Load(id string) (*Document, error) {
	path := filepath.Join(s.documentDir(id), documentFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var file documentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("malformed document %s: %w", id, err)
	}
	if file.Document.ID == "" {
		file.Document.ID = id
	}
	if file.Document.Stage == "" {
		file.Document.Stage = StageConcept
	}
	return &file.Document, nil
}

// Save writes the document atomically (temp file + rename).
func (s *Store) Save(doc *Document) error {
	dir := s.documentDir(doc.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(documentFile{SchemaVersion: schemaVersion, Document: *doc}, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, documentFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, documentFileName))
}

// List returns the ids and titles of all stored documents, newest first.
type ListEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) List() ([]ListEntry, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []ListEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		doc, err := s.Load(entry.Name())
		if err != nil {
			// Malformed documents are skipped, not fatal to listing.
			continue
		}
		out = append(out, ListEntry{ID: doc.ID, Title: doc.Title, Stage: doc.Stage, UpdatedAt: doc.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// AppendConceptRevision records a concept snapshot in the append-only history
// log for the document.
func (s *Store) AppendConceptRevision(id string, concept ConceptSnapshot) error {
	dir := s.documentDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(filepath.Join(dir, conceptLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	data, err := json.Marshal(concept)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

// ConceptHistory returns all recorded concept revisions, oldest first.
// Unreadable or corrupt log lines are skipped; a missing log is empty history.
func (s *Store) ConceptHistory(id string) ([]ConceptSnapshot, error) {
	file, err := os.Open(filepath.Join(s.documentDir(id), conceptLogName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	var history []ConceptSnapshot
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var concept ConceptSnapshot
		if err := json.Unmarshal([]byte(line), &concept); err != nil {
			continue
		}
		history = append(history, concept)
	}
	if err := scanner.Err(); err != nil {
		return history, err
	}
	return history, nil
}

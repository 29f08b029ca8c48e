package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"inkwell/engine/internal/anthropic"
	"inkwell/engine/internal/appdirs"
	"inkwell/engine/internal/diff"
	"inkwell/engine/internal/document"
	"inkwell/engine/internal/envutil"
	"inkwell/engine/internal/errinfo"
	"inkwell/engine/internal/llm"
	"inkwell/engine/internal/logging"
	"inkwell/engine/internal/settings"
	"inkwell/engine/internal/snapshot"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

const (
	rateLimitRetryMaxAttempts = 5
	rateLimitRetryBaseDelay   = 10 * time.Second
	rateLimitRetryMaxDelay    = 4 * time.Minute
)

type Notifier func(method string, params any)

// LLMClient is the provider transport the agent loop runs against. The real
// implementation streams from the Anthropic Messages API; tests script a fake.
type LLMClient interface {
	ValidateKey(ctx context.Context, apiKey string) error
	StreamChat(ctx context.Context, apiKey, model, system string, messages []llm.Message, tools []llm.Tool, onDelta func(string)) (llm.ChatResponse, error)
}

type agentRunHandle struct {
	runID  string
	cancel context.CancelFunc
}

type Engine struct {
	dataDir   string
	settings  *settings.Store
	documents *document.Store
	tracker   *snapshot.Tracker
	client    LLMClient
	keyless   bool
	notify    Notifier
	logger    *slog.Logger

	docMu sync.Mutex
	open  map[string]*document.Document

	runMu     sync.Mutex
	agentRuns map[string]agentRunHandle

	// Tracks in-flight background persistence so shutdown can drain it.
	saves sync.WaitGroup

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClient swaps the provider transport, primarily for tests. A client set
// this way is trusted without an API key.
func WithClient(client LLMClient) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
			e.keyless = true
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		opt(engine)
	}
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	documentsDir := appdirs.DocumentsDir(dataDir)
	store := document.NewStore(documentsDir)
	if err := store.Init(); err != nil {
		return nil, err
	}
	if engine.client == nil {
		if envutil.Bool("INKWELL_FAKE_ANTHROPIC") {
			engine.client = newFakeAnthropic()
			engine.keyless = true
		} else {
			engine.client = anthropic.NewClient()
		}
	}
	engine.dataDir = dataDir
	engine.settings = settings.NewStore(filepath.Join(dataDir, "settings.json"))
	engine.documents = store
	engine.tracker = snapshot.NewTracker()
	engine.open = make(map[string]*document.Document)
	engine.agentRuns = make(map[string]agentRunHandle)
	engine.now = time.Now
	engine.sleep = sleepWithContext
	engine.logger.Debug("engine.init", "data_dir", dataDir, "documents_dir", documentsDir, "fake_anthropic", envutil.Bool("INKWELL_FAKE_ANTHROPIC"))
	return engine, nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
	}, nil
}

// requireDocument returns the in-memory document, loading it from disk on
// first touch. Loading captures the agent's initial snapshot.
func (e *Engine) requireDocument(id string) (*document.Document, *errinfo.ErrorInfo) {
	if strings.TrimSpace(id) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "document_id is required")
	}
	e.docMu.Lock()
	defer e.docMu.Unlock()
	if doc, ok := e.open[id]; ok {
		return doc, nil
	}
	doc, err := e.documents.Load(id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, errinfo.DocumentNotLoaded(errinfo.PhaseDocument, fmt.Sprintf("document not found: %s", id))
		}
		return nil, errinfo.FileReadFailed(errinfo.PhaseDocument, err.Error())
	}
	e.open[id] = doc
	e.tracker.Capture(doc)
	e.logger.Debug("document.opened", "document_id", id, "stage", doc.Stage)
	return doc, nil
}

// saveAsync persists in the background. Sync and diff work never waits on
// disk; failures are logged and the in-memory copy stays authoritative.
func (e *Engine) saveAsync(doc *document.Document) {
	e.docMu.Lock()
	copied := *doc
	copied.Outline = document.CloneOutline(doc.Outline)
	copied.EditHistory = append([]document.EditSuggestion(nil), doc.EditHistory...)
	e.docMu.Unlock()
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()
		if err := e.documents.Save(&copied); err != nil {
			e.logger.Warn("document.save_failed", "document_id", copied.ID, "error", err.Error())
		}
	}()
}

// Close waits for background persistence to settle.
func (e *Engine) Close() {
	e.saves.Wait()
}

func (e *Engine) DocumentCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, err := e.documents.Create(strings.TrimSpace(req.Title))
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseDocument, err.Error())
	}
	e.docMu.Lock()
	e.open[doc.ID] = doc
	e.tracker.Capture(doc)
	e.docMu.Unlock()
	e.logger.Info("document.created", "document_id", doc.ID)
	return documentView(doc), nil
}

func (e *Engine) DocumentOpen(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.docMu.Lock()
	view := documentView(doc)
	e.docMu.Unlock()
	return view, nil
}

func (e *Engine) DocumentList(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	entries, err := e.documents.List()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseDocument, err.Error())
	}
	return map[string]any{"documents": entries}, nil
}

func (e *Engine) DocumentGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.docMu.Lock()
	view := documentView(doc)
	e.docMu.Unlock()
	return view, nil
}

func (e *Engine) DocumentUpdateContent(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.docMu.Lock()
	doc.Content = req.Content
	doc.UpdatedAt = e.now().UTC()
	wordCount := document.WordCount(doc.Content)
	e.docMu.Unlock()
	e.saveAsync(doc)
	return map[string]any{"word_count": wordCount}, nil
}

func (e *Engine) OutlineUpdate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Sections   []struct {
			ID             string `json:"id"`
			Title          string `json:"title"`
			Description    string `json:"description"`
			EstimatedWords int    `json:"estimated_words"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseOutline, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	// Fully empty rows are UI artifacts, not sections.
	outline := make([]document.OutlineSection, 0, len(req.Sections))
	for _, s := range req.Sections {
		if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Description) == "" {
			continue
		}
		if s.EstimatedWords < 0 {
			return nil, errinfo.ValidationFailed(errinfo.PhaseOutline, "estimated_words must be non-negative")
		}
		id := s.ID
		if strings.TrimSpace(id) == "" {
			id = document.NewSectionID()
		}
		outline = append(outline, document.OutlineSection{
			ID:             id,
			Title:          s.Title,
			Description:    s.Description,
			EstimatedWords: s.EstimatedWords,
		})
	}
	e.docMu.Lock()
	doc.Outline = outline
	doc.UpdatedAt = e.now().UTC()
	view := document.CloneOutline(doc.Outline)
	e.docMu.Unlock()
	e.saveAsync(doc)
	return map[string]any{"outline": view}, nil
}

func (e *Engine) ConceptUpdate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID   string `json:"document_id"`
		Title        string `json:"title"`
		CoreArgument string `json:"core_argument"`
		Audience     string `json:"audience"`
		Tone         string `json:"tone"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConcept, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.CoreArgument) == "" &&
		strings.TrimSpace(req.Audience) == "" && strings.TrimSpace(req.Tone) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConcept, "concept update is empty")
	}
	concept := document.ConceptSnapshot{
		Title:        req.Title,
		CoreArgument: req.CoreArgument,
		Audience:     req.Audience,
		Tone:         req.Tone,
		UpdatedAt:    e.now().UTC(),
	}
	e.docMu.Lock()
	doc.Concept = &concept
	doc.UpdatedAt = concept.UpdatedAt
	e.docMu.Unlock()
	e.saveAsync(doc)
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()
		if err := e.documents.AppendConceptRevision(doc.ID, concept); err != nil {
			e.logger.Warn("concept.history_write_failed", "document_id", doc.ID, "error", err.Error())
		}
	}()
	return map[string]any{"concept": concept}, nil
}

func (e *Engine) StageSet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Stage      string `json:"stage"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	stage, err := document.ParseStage(req.Stage)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, err.Error())
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.docMu.Lock()
	doc.Stage = stage
	doc.UpdatedAt = e.now().UTC()
	e.docMu.Unlock()
	e.saveAsync(doc)
	e.logger.Info("document.stage_set", "document_id", doc.ID, "stage", stage)
	return map[string]any{"stage": stage}, nil
}

func (e *Engine) EditHistoryList(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.docMu.Lock()
	history := append([]document.EditSuggestion(nil), doc.EditHistory...)
	e.docMu.Unlock()
	return map[string]any{"suggestions": history}, nil
}

// ReviewGetTextDiff serves the UI's review pane: precise line hunks between a
// baseline the UI holds and the live content, unlike the coarse agent-facing
// diff.
func (e *Engine) ReviewGetTextDiff(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Previous   string `json:"previous"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseReview, "invalid params")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.docMu.Lock()
	current := doc.Content
	e.docMu.Unlock()
	hunks, truncated := diff.HunksWithLimit(req.Previous, current, diff.MaxHunkLines)
	return map[string]any{
		"hunks":     hunks,
		"truncated": truncated,
	}, nil
}

func (e *Engine) ConversationGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAgent, "invalid params")
	}
	if _, errInfo := e.requireDocument(req.DocumentID); errInfo != nil {
		return nil, errInfo
	}
	entries, err := e.loadConversation(req.DocumentID)
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseAgent, err.Error())
	}
	return map[string]any{"messages": entries}, nil
}

func (e *Engine) AgentCancelRun(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAgent, "invalid params")
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAgent, "document_id is required")
	}
	return map[string]any{
		"cancel_requested": e.cancelAgentRun(req.DocumentID),
	}, nil
}

func (e *Engine) beginAgentRun(parent context.Context, documentID string) (context.Context, string, *errinfo.ErrorInfo) {
	runCtx, cancel := context.WithCancel(parent)
	runID := fmt.Sprintf("run-%d", e.now().UnixNano())

	e.runMu.Lock()
	defer e.runMu.Unlock()
	if _, exists := e.agentRuns[documentID]; exists {
		cancel()
		return nil, "", errinfo.AgentRunActive(errinfo.PhaseAgent, "agent run already in progress")
	}
	e.agentRuns[documentID] = agentRunHandle{runID: runID, cancel: cancel}
	return runCtx, runID, nil
}

func (e *Engine) endAgentRun(documentID, runID string) {
	var cancel context.CancelFunc

	e.runMu.Lock()
	handle, ok := e.agentRuns[documentID]
	if ok && handle.runID == runID {
		cancel = handle.cancel
		delete(e.agentRuns, documentID)
	}
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Engine) cancelAgentRun(documentID string) bool {
	e.runMu.Lock()
	handle, ok := e.agentRuns[documentID]
	e.runMu.Unlock()
	if !ok || handle.cancel == nil {
		return false
	}
	handle.cancel()
	return true
}

type conversationMessage struct {
	Type      string         `json:"type"`
	MessageID string         `json:"message_id"`
	Role      string         `json:"role"`
	Text      string         `json:"text,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func (e *Engine) conversationPath(documentID string) string {
	return filepath.Join(appdirs.DocumentsDir(e.dataDir), documentID, "conversation.jsonl")
}

func (e *Engine) appendConversation(documentID string, entry conversationMessage) error {
	path := e.conversationPath(documentID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// loadConversation tolerates corrupt lines; a damaged log loses entries, not
// the whole history.
func (e *Engine) loadConversation(documentID string) ([]conversationMessage, error) {
	f, err := os.Open(e.conversationPath(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var entries []conversationMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry conversationMessage
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			e.logger.Warn("conversation.corrupt_entry", "document_id", documentID, "error", err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func (e *Engine) anthropicKey() (string, *errinfo.ErrorInfo) {
	key := strings.TrimSpace(os.Getenv("INKWELL_ANTHROPIC_API_KEY"))
	if key == "" && !e.keyless {
		return "", errinfo.ProviderNotConfigured(errinfo.PhaseAgent)
	}
	return key, nil
}

func documentView(doc *document.Document) map[string]any {
	return map[string]any{
		"id":           doc.ID,
		"title":        doc.Title,
		"content":      doc.Content,
		"stage":        doc.Stage,
		"concept":      doc.Concept,
		"outline":      doc.Outline,
		"edit_history": doc.EditHistory,
		"word_count":   document.WordCount(doc.Content),
		"created_at":   doc.CreatedAt,
		"updated_at":   doc.UpdatedAt,
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

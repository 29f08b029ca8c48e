package document

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreCreateLoadSave(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	doc, err := store.Create("Essay on Rivers")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected generated id")
	}
	if doc.Stage != StageConcept {
		t.Fatalf("expected new document in concept stage, got %s", doc.Stage)
	}

	doc.Content = "Rivers shape the land.\n"
	doc.Stage = StageDraft
	if err := store.Save(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(doc.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Content != doc.Content {
		t.Fatalf("content mismatch: %q", loaded.Content)
	}
	if loaded.Stage != StageDraft {
		t.Fatalf("stage mismatch: %s", loaded.Stage)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Load("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreLoadMalformed(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base)
	dir := filepath.Join(base, "bad-doc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "document.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Load("bad-doc"); err == nil {
		t.Fatalf("expected error for malformed document")
	}
}

func TestConceptHistoryAppendOnly(t *testing.T) {
	store := NewStore(t.TempDir())
	doc, err := store.Create("")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first := ConceptSnapshot{Title: "v1", CoreArgument: "a", UpdatedAt: time.Now().UTC()}
	second := ConceptSnapshot{Title: "v2", CoreArgument: "b", UpdatedAt: time.Now().UTC()}
	if err := store.AppendConceptRevision(doc.ID, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendConceptRevision(doc.ID, second); err != nil {
		t.Fatalf("append: %v", err)
	}
	history, err := store.ConceptHistory(doc.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Title != "v1" || history[1].Title != "v2" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestConceptHistoryMissingIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	history, err := store.ConceptHistory("ghost")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history != nil {
		t.Fatalf("expected empty history, got %+v", history)
	}
}

func TestParseStage(t *testing.T) {
	cases := []struct {
		in      string
		want    Stage
		wantErr bool
	}{
		{"draft", StageDraft, false},
		{" Polish ", StagePolish, false},
		{"CONCEPT", StageConcept, false},
		{"review", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStage(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount(""); got != 0 {
		t.Fatalf("empty: %d", got)
	}
	if got := WordCount("one two  three\nfour\t five"); got != 5 {
		t.Fatalf("expected 5 words, got %d", got)
	}
}

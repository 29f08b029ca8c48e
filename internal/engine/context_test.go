package engine

import (
	"strings"
	"testing"

	"inkwell/engine/internal/document"
	"inkwell/engine/internal/snapshot"
)

func promptDoc() *document.Document {
	return &document.Document{
		ID:      "doc-1",
		Title:   "Essay",
		Stage:   document.StageDraft,
		Content: "# Intro\n\nSome drafted prose.",
		Concept: &document.ConceptSnapshot{Title: "On Rivers", CoreArgument: "rivers shape cities"},
		Outline: []document.OutlineSection{
			{ID: "s1", Title: "Intro", Description: "opening", EstimatedWords: 300},
			{ID: "s2", Title: "Body", Description: "the middle"},
		},
	}
}

func TestSystemPromptBaseSections(t *testing.T) {
	prompt := buildSystemPrompt(promptDoc(), nil)
	for _, want := range []string{
		"Current stage: draft",
		"On Rivers",
		"1. Intro (~300 words)",
		"2. Body",
		"Some drafted prose.",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Changes since your last turn") {
		t.Fatalf("sync section rendered without changes:\n%s", prompt)
	}
}

func TestSystemPromptEmptyDocument(t *testing.T) {
	doc := promptDoc()
	doc.Content = ""
	doc.Concept = nil
	doc.Outline = nil
	prompt := buildSystemPrompt(doc, nil)
	if !strings.Contains(prompt, "(empty)") {
		t.Fatalf("empty document not marked:\n%s", prompt)
	}
	if strings.Contains(prompt, "## Concept") || strings.Contains(prompt, "## Outline") {
		t.Fatalf("absent sections rendered:\n%s", prompt)
	}
}

func TestSystemPromptRendersContentDiff(t *testing.T) {
	doc := promptDoc()
	changes := &snapshot.Changes{
		ContentChanged:  true,
		PreviousContent: "old line",
		CurrentContent:  doc.Content,
	}
	prompt := buildSystemPrompt(doc, changes)
	if !strings.Contains(prompt, "Changes since your last turn") {
		t.Fatalf("sync section missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- Content:") {
		t.Fatalf("content diff missing:\n%s", prompt)
	}
}

func TestSystemPromptRendersConflicts(t *testing.T) {
	doc := promptDoc()
	previous := document.CloneOutline(doc.Outline)
	current := []document.OutlineSection{doc.Outline[1]} // Intro deleted
	doc.Outline = current
	changes := &snapshot.Changes{
		OutlineChanged:  true,
		PreviousOutline: previous,
		CurrentOutline:  current,
	}
	prompt := buildSystemPrompt(doc, changes)
	if !strings.Contains(prompt, "- Conflicts:") {
		t.Fatalf("conflict report missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[deleted]") {
		t.Fatalf("deleted conflict not rendered:\n%s", prompt)
	}
}

func TestSystemPromptStageChange(t *testing.T) {
	doc := promptDoc()
	changes := &snapshot.Changes{
		StageChanged:  true,
		PreviousStage: document.StageOutline,
		CurrentStage:  document.StageDraft,
	}
	prompt := buildSystemPrompt(doc, changes)
	if !strings.Contains(prompt, "moved from outline to draft") {
		t.Fatalf("stage change missing:\n%s", prompt)
	}
}

func TestPreviewContentTruncates(t *testing.T) {
	long := strings.Repeat("x", maxDocumentPreviewRunes+100)
	preview := previewContent(long)
	if !strings.Contains(preview, "document truncated") {
		t.Fatalf("no truncation marker")
	}
	if len([]rune(preview)) > maxDocumentPreviewRunes+60 {
		t.Fatalf("preview too long: %d", len([]rune(preview)))
	}
}

package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage is the writing-process phase a document is in. The order is fixed.
type Stage string

const (
	StageConcept Stage = "concept"
	StageOutline Stage = "outline"
	StageDraft   Stage = "draft"
	StageEdits   Stage = "edits"
	StagePolish  Stage = "polish"
)

// Stages lists all stages in process order.
var Stages = []Stage{StageConcept, StageOutline, StageDraft, StageEdits, StagePolish}

func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Stages {
		if stage == known {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage: %q", value)
}

// OutlineSection is one entry in a document outline. The id is assigned at
// creation and never changes or gets reused; list order is significant.
type OutlineSection struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	EstimatedWords int    `json:"estimated_words,omitempty"`
}

// NewSectionID returns a fresh stable id for an outline section.
func NewSectionID() string {
	return uuid.NewString()
}

// ConceptSnapshot captures the current working concept for a document.
type ConceptSnapshot struct {
	Title        string    `json:"title"`
	CoreArgument string    `json:"core_argument"`
	Audience     string    `json:"audience"`
	Tone         string    `json:"tone"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EditSuggestion is one agent-proposed edit recorded against the document.
type EditSuggestion struct {
	ID        string    `json:"id"`
	Original  string    `json:"original"`
	Suggested string    `json:"suggested"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the single authoritative copy of a piece of writing. The engine
// mutates it only through explicit operations.
type Document struct {
	ID          string           `json:"id"`
	Title       string           `json:"title,omitempty"`
	Content     string           `json:"content"`
	Stage       Stage            `json:"stage"`
	Concept     *ConceptSnapshot `json:"concept,omitempty"`
	Outline     []OutlineSection `json:"outline,omitempty"`
	EditHistory []EditSuggestion `json:"edit_history,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// CloneOutline returns a deep copy of an outline so snapshots cannot alias
// live state.
func CloneOutline(outline []OutlineSection) []OutlineSection {
	if outline == nil {
		return nil
	}
	out := make([]OutlineSection, len(outline))
	copy(out, outline)
	return out
}

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"inkwell/engine/internal/document"
	"inkwell/engine/internal/llm"
)

// The closed set of tools exposed to the model. Dispatch is a switch on these
// constants; an unknown name is a tool error, never a crash.
const (
	ToolGetDocument   = "get_document"
	ToolUpdateContent = "update_content"
	ToolUpdateConcept = "update_concept"
	ToolSaveOutline   = "save_outline"
	ToolSetStage      = "set_stage"
	ToolSuggestEdit   = "suggest_edit"
)

var validate = validator.New()

// WriterTools is the catalog sent to the model on every turn.
var WriterTools = []llm.Tool{
	{
		Name:        ToolGetDocument,
		Description: "Read the current document: content, stage, concept, outline, and edit history.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`),
	},
	{
		Name:        ToolUpdateContent,
		Description: "Modify the document text. Mode 'replace' swaps the whole content, 'insert' adds text at a character position, 'append' adds text at the end.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"mode":{"type":"string","enum":["replace","insert","append"]},"text":{"type":"string"},"position":{"type":"integer","minimum":0}},"required":["mode","text"],"additionalProperties":false}`),
	},
	{
		Name:        ToolUpdateConcept,
		Description: "Update the working concept: title, core argument, audience, tone. Omitted fields are cleared.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"core_argument":{"type":"string"},"audience":{"type":"string"},"tone":{"type":"string"}},"additionalProperties":false}`),
	},
	{
		Name:        ToolSaveOutline,
		Description: "Replace the outline. Pass the full list of sections; keep existing ids for sections you are editing so history stays attached.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"sections":{"type":"array","minItems":1,"items":{"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"},"estimated_words":{"type":"integer","minimum":0}},"additionalProperties":false}}},"required":["sections"],"additionalProperties":false}`),
	},
	{
		Name:        ToolSetStage,
		Description: "Move the document to a writing stage: concept, outline, draft, edits, or polish.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"stage":{"type":"string","enum":["concept","outline","draft","edits","polish"]}},"required":["stage"],"additionalProperties":false}`),
	},
	{
		Name:        ToolSuggestEdit,
		Description: "Record an edit suggestion for the user to review instead of changing the text directly.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"original":{"type":"string"},"suggested":{"type":"string"},"reason":{"type":"string"}},"required":["original","suggested"],"additionalProperties":false}`),
	},
}

type updateContentInput struct {
	Mode     string `json:"mode" validate:"required,oneof=replace insert append"`
	Text     string `json:"text"`
	Position int    `json:"position" validate:"gte=0"`
}

type updateConceptInput struct {
	Title        string `json:"title"`
	CoreArgument string `json:"core_argument"`
	Audience     string `json:"audience"`
	Tone         string `json:"tone"`
}

type outlineSectionInput struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	EstimatedWords int    `json:"estimated_words" validate:"gte=0"`
}

type saveOutlineInput struct {
	Sections []outlineSectionInput `json:"sections" validate:"required,min=1,dive"`
}

type setStageInput struct {
	Stage string `json:"stage" validate:"required,oneof=concept outline draft edits polish"`
}

type suggestEditInput struct {
	Original  string `json:"original" validate:"required"`
	Suggested string `json:"suggested" validate:"required"`
	Reason    string `json:"reason"`
}

// ToolHandler executes tool uses against one document. All failures become
// error tool results fed back to the model; nothing escapes the tool layer.
type ToolHandler struct {
	engine *Engine
	doc    *document.Document
}

func NewToolHandler(e *Engine, doc *document.Document) *ToolHandler {
	return &ToolHandler{engine: e, doc: doc}
}

func (h *ToolHandler) Execute(use llm.ToolUse) llm.ToolResult {
	content, err := h.dispatch(use)
	if err != nil {
		return llm.ToolResult{
			ToolUseID: use.ID,
			Content:   fmt.Sprintf("Error: %s", err.Error()),
			IsError:   true,
		}
	}
	return llm.ToolResult{ToolUseID: use.ID, Content: content}
}

func (h *ToolHandler) dispatch(use llm.ToolUse) (string, error) {
	switch use.Name {
	case ToolGetDocument:
		return h.getDocument()
	case ToolUpdateContent:
		var input updateContentInput
		if err := decodeToolInput(use.Input, &input); err != nil {
			return "", err
		}
		return h.updateContent(input)
	case ToolUpdateConcept:
		var input updateConceptInput
		if err := decodeToolInput(use.Input, &input); err != nil {
			return "", err
		}
		return h.updateConcept(input)
	case ToolSaveOutline:
		var input saveOutlineInput
		if err := decodeToolInput(use.Input, &input); err != nil {
			return "", err
		}
		return h.saveOutline(input)
	case ToolSetStage:
		var input setStageInput
		if err := decodeToolInput(use.Input, &input); err != nil {
			return "", err
		}
		return h.setStage(input)
	case ToolSuggestEdit:
		var input suggestEditInput
		if err := decodeToolInput(use.Input, &input); err != nil {
			return "", err
		}
		return h.suggestEdit(input)
	default:
		return "", fmt.Errorf("unknown tool: %s", use.Name)
	}
}

func decodeToolInput(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

func (h *ToolHandler) getDocument() (string, error) {
	h.engine.docMu.Lock()
	view := documentView(h.doc)
	h.engine.docMu.Unlock()
	data, err := json.Marshal(view)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *ToolHandler) updateContent(input updateContentInput) (string, error) {
	e := h.engine
	e.docMu.Lock()
	switch input.Mode {
	case "replace":
		h.doc.Content = input.Text
	case "append":
		h.doc.Content += input.Text
	case "insert":
		runes := []rune(h.doc.Content)
		pos := input.Position
		if pos > len(runes) {
			pos = len(runes)
		}
		h.doc.Content = string(runes[:pos]) + input.Text + string(runes[pos:])
	}
	h.doc.UpdatedAt = e.now().UTC()
	wordCount := document.WordCount(h.doc.Content)
	e.docMu.Unlock()
	e.saveAsync(h.doc)
	e.logger.Info("tool.update_content", "document_id", h.doc.ID, "mode", input.Mode, "word_count", wordCount)
	return fmt.Sprintf("Content updated (%s). Document is now %d words.", input.Mode, wordCount), nil
}

func (h *ToolHandler) updateConcept(input updateConceptInput) (string, error) {
	if strings.TrimSpace(input.Title) == "" && strings.TrimSpace(input.CoreArgument) == "" &&
		strings.TrimSpace(input.Audience) == "" && strings.TrimSpace(input.Tone) == "" {
		return "", fmt.Errorf("concept update is empty")
	}
	e := h.engine
	concept := document.ConceptSnapshot{
		Title:        input.Title,
		CoreArgument: input.CoreArgument,
		Audience:     input.Audience,
		Tone:         input.Tone,
		UpdatedAt:    e.now().UTC(),
	}
	e.docMu.Lock()
	h.doc.Concept = &concept
	h.doc.UpdatedAt = concept.UpdatedAt
	e.docMu.Unlock()
	e.saveAsync(h.doc)
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()
		if err := e.documents.AppendConceptRevision(h.doc.ID, concept); err != nil {
			e.logger.Warn("concept.history_write_failed", "document_id", h.doc.ID, "error", err.Error())
		}
	}()
	e.logger.Info("tool.update_concept", "document_id", h.doc.ID)
	return "Concept updated.", nil
}

func (h *ToolHandler) saveOutline(input saveOutlineInput) (string, error) {
	outline := make([]document.OutlineSection, 0, len(input.Sections))
	for i, s := range input.Sections {
		if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Description) == "" {
			return "", fmt.Errorf("section %d needs a title or description", i+1)
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
	e := h.engine
	e.docMu.Lock()
	h.doc.Outline = outline
	h.doc.UpdatedAt = e.now().UTC()
	e.docMu.Unlock()
	e.saveAsync(h.doc)
	e.logger.Info("tool.save_outline", "document_id", h.doc.ID, "sections", len(outline))
	return fmt.Sprintf("Outline saved with %d sections.", len(outline)), nil
}

func (h *ToolHandler) setStage(input setStageInput) (string, error) {
	stage, err := document.ParseStage(input.Stage)
	if err != nil {
		return "", err
	}
	e := h.engine
	e.docMu.Lock()
	h.doc.Stage = stage
	h.doc.UpdatedAt = e.now().UTC()
	e.docMu.Unlock()
	e.saveAsync(h.doc)
	e.logger.Info("tool.set_stage", "document_id", h.doc.ID, "stage", stage)
	return fmt.Sprintf("Stage set to %s.", stage), nil
}

func (h *ToolHandler) suggestEdit(input suggestEditInput) (string, error) {
	e := h.engine
	suggestion := document.EditSuggestion{
		ID:        uuid.NewString(),
		Original:  input.Original,
		Suggested: input.Suggested,
		Reason:    input.Reason,
		CreatedAt: e.now().UTC(),
	}
	e.docMu.Lock()
	h.doc.EditHistory = append(h.doc.EditHistory, suggestion)
	h.doc.UpdatedAt = suggestion.CreatedAt
	e.docMu.Unlock()
	e.saveAsync(h.doc)
	e.logger.Info("tool.suggest_edit", "document_id", h.doc.ID, "suggestion_id", suggestion.ID)
	return fmt.Sprintf("Edit suggestion %s recorded.", suggestion.ID), nil
}

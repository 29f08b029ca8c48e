package engine

import (
	"fmt"
	"strings"

	"inkwell/engine/internal/conflict"
	"inkwell/engine/internal/diff"
	"inkwell/engine/internal/document"
	"inkwell/engine/internal/snapshot"
)

const maxDocumentPreviewRunes = 6000

var stageInstructions = map[document.Stage]string{
	document.StageConcept: "The writer is shaping the concept. Help them sharpen the core argument, audience, and tone before any outlining. Prefer update_concept over touching content.",
	document.StageOutline: "The writer is structuring the piece. Help them build or refine the outline with save_outline. Keep section descriptions concrete enough to draft from.",
	document.StageDraft:   "The writer is drafting. Produce prose that follows the outline, using update_content. Do not restructure the outline unless asked.",
	document.StageEdits:   "The writer is revising. Prefer suggest_edit for substantive changes so the writer stays in control; use update_content only for changes they asked for directly.",
	document.StagePolish:  "The writer is polishing. Focus on word choice, rhythm, and consistency. Suggest small precise edits; avoid structural changes.",
}

// buildSystemPrompt assembles the agent's view of the document for one turn.
// The sync section is present only when the tracker reports drift, so an
// unchanged document costs no prompt space.
func buildSystemPrompt(doc *document.Document, changes *snapshot.Changes) string {
	var b strings.Builder
	b.WriteString("You are a writing assistant working inside a document editor. ")
	b.WriteString("You collaborate with the writer through the tools provided; never invent document state, read it with get_document if unsure.\n\n")

	b.WriteString(fmt.Sprintf("Current stage: %s\n", doc.Stage))
	if instructions, ok := stageInstructions[doc.Stage]; ok {
		b.WriteString(instructions)
		b.WriteString("\n")
	}

	if doc.Concept != nil {
		b.WriteString("\n## Concept\n")
		writeConceptLine(&b, "Title", doc.Concept.Title)
		writeConceptLine(&b, "Core argument", doc.Concept.CoreArgument)
		writeConceptLine(&b, "Audience", doc.Concept.Audience)
		writeConceptLine(&b, "Tone", doc.Concept.Tone)
	}

	if len(doc.Outline) > 0 {
		b.WriteString("\n## Outline\n")
		for i, section := range doc.Outline {
			b.WriteString(fmt.Sprintf("%d. %s", i+1, section.Title))
			if section.EstimatedWords > 0 {
				b.WriteString(fmt.Sprintf(" (~%d words)", section.EstimatedWords))
			}
			b.WriteString("\n")
			if strings.TrimSpace(section.Description) != "" {
				b.WriteString("   ")
				b.WriteString(section.Description)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n## Document\n")
	if strings.TrimSpace(doc.Content) == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(fmt.Sprintf("(%d words)\n", document.WordCount(doc.Content)))
		b.WriteString(previewContent(doc.Content))
		b.WriteString("\n")
	}

	if changes != nil {
		b.WriteString("\n")
		b.WriteString(renderChanges(doc, changes))
	}

	return b.String()
}

func writeConceptLine(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) <= maxDocumentPreviewRunes {
		return content
	}
	return string(runes[:maxDocumentPreviewRunes]) + "\n[... document truncated for context ...]"
}

// renderChanges describes everything the user did since the agent's last
// synchronized view, including conflicts between outline edits and prose.
func renderChanges(doc *document.Document, changes *snapshot.Changes) string {
	var b strings.Builder
	b.WriteString("## Changes since your last turn\n")
	b.WriteString("The writer edited the document while you were away. Take these changes into account before acting.\n")

	if changes.ContentChanged {
		contentDiff := diff.Content(changes.PreviousContent, changes.CurrentContent)
		b.WriteString(fmt.Sprintf("- Content: %s\n", contentDiff.Summary))
		if contentDiff.DiffText != "" {
			b.WriteString(indentBlock(contentDiff.DiffText))
		}
	}
	if changes.OutlineChanged {
		outlineDiff := diff.Outline(changes.PreviousOutline, changes.CurrentOutline)
		b.WriteString(fmt.Sprintf("- Outline: %s\n", outlineDiff.Summary))
	}
	if changes.StageChanged {
		b.WriteString(fmt.Sprintf("- Stage: moved from %s to %s\n", changes.PreviousStage, changes.CurrentStage))
	}

	if changes.OutlineChanged {
		report := conflict.Detect(changes.PreviousOutline, changes.CurrentOutline, doc.Content)
		if report.HasConflicts {
			b.WriteString(fmt.Sprintf("- Conflicts: %s\n", report.Summary))
			for _, c := range report.Conflicts {
				b.WriteString(fmt.Sprintf("  - [%s] %s\n", c.Type, c.OutlineChange))
				if c.DraftPreview != "" {
					b.WriteString(fmt.Sprintf("    drafted text: %q\n", c.DraftPreview))
				}
			}
			b.WriteString("Point out these conflicts to the writer before rewriting anything.\n")
		}
	}
	return b.String()
}

func indentBlock(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

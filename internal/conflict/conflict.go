package conflict

import (
	"fmt"
	"strings"

	"inkwell/engine/internal/document"
)

// Type classifies how an outline edit invalidates drafted prose.
type Type string

const (
	TypeDeleted   Type = "deleted"
	TypeModified  Type = "modified"
	TypeReordered Type = "reordered"
)

const (
	// Description edits smaller than these thresholds are treated as cosmetic.
	descriptionCharThreshold  = 50
	descriptionRatioThreshold = 0.20

	// A one-slot shift is noise; two or more is a real move.
	reorderSlotThreshold = 2

	previewLimit = 200
	// Prefer breaking the preview at a word boundary at least this far in.
	previewBoundaryRatio = 0.70
)

// Conflict flags one outline edit that contradicts already-drafted prose.
type Conflict struct {
	SectionID     string `json:"section_id"`
	SectionTitle  string `json:"section_title"`
	Type          Type   `json:"type"`
	OutlineChange string `json:"outline_change"`
	DraftPreview  string `json:"draft_preview"`
}

// Report is the result of one detection pass. It is only meaningful for the
// exact (previous, current, draft) triple it was computed from.
type Report struct {
	HasConflicts bool       `json:"has_conflicts"`
	Summary      string     `json:"summary"`
	Conflicts    []Conflict `json:"conflicts,omitempty"`
}

// draftSection is a titled block extracted from draft text. Prose before the
// first heading has no section and can never conflict.
type draftSection struct {
	title   string
	content string
}

// Detect checks whether an outline edit invalidates prose already written
// under matching headings. It never mutates its inputs and never resolves
// anything on its own.
func Detect(previous, current []document.OutlineSection, draftText string) Report {
	if strings.TrimSpace(draftText) == "" {
		return Report{Summary: "no conflicts"}
	}

	sections := extractDraftSections(draftText)
	if len(sections) == 0 {
		return Report{Summary: "no conflicts"}
	}

	currentByID := make(map[string]document.OutlineSection, len(current))
	currentPos := make(map[string]int, len(current))
	for i, section := range current {
		currentByID[section.ID] = section
		currentPos[section.ID] = i
	}
	previousPos := make(map[string]int, len(previous))
	for i, section := range previous {
		previousPos[section.ID] = i
	}

	var conflicts []Conflict
	for _, draft := range sections {
		matched, ok := matchOutlineSection(draft.title, previous)
		if !ok {
			continue
		}
		preview := previewText(draft.content)

		after, exists := currentByID[matched.ID]
		if !exists {
			conflicts = append(conflicts, Conflict{
				SectionID:     matched.ID,
				SectionTitle:  matched.Title,
				Type:          TypeDeleted,
				OutlineChange: fmt.Sprintf("section %q was removed from the outline", matched.Title),
				DraftPreview:  preview,
			})
			continue
		}

		if change := materialChange(matched, after); change != "" {
			conflicts = append(conflicts, Conflict{
				SectionID:     matched.ID,
				SectionTitle:  matched.Title,
				Type:          TypeModified,
				OutlineChange: change,
				DraftPreview:  preview,
			})
		}

		before := previousPos[matched.ID]
		now := currentPos[matched.ID]
		if shift := now - before; shift >= reorderSlotThreshold || shift <= -reorderSlotThreshold {
			conflicts = append(conflicts, Conflict{
				SectionID:     matched.ID,
				SectionTitle:  matched.Title,
				Type:          TypeReordered,
				OutlineChange: fmt.Sprintf("section %q moved from position %d to %d", matched.Title, before+1, now+1),
				DraftPreview:  preview,
			})
		}
	}

	if len(conflicts) == 0 {
		return Report{Summary: "no conflicts"}
	}
	return Report{
		HasConflicts: true,
		Summary:      summarize(conflicts),
		Conflicts:    conflicts,
	}
}

// extractDraftSections scans markdown-style headings; everything up to the
// next heading (or end of text) belongs to the preceding one.
func extractDraftSections(draftText string) []draftSection {
	lines := strings.Split(strings.ReplaceAll(draftText, "\r\n", "\n"), "\n")
	var sections []draftSection
	var currentTitle string
	var body []string
	flush := func() {
		if currentTitle == "" {
			return
		}
		sections = append(sections, draftSection{
			title:   currentTitle,
			content: strings.TrimSpace(strings.Join(body, "\n")),
		})
	}
	for _, line := range lines {
		if title, ok := headingTitle(line); ok {
			flush()
			currentTitle = title
			body = body[:0]
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	rest := strings.TrimLeft(trimmed, "#")
	if rest == trimmed || !strings.HasPrefix(rest, " ") {
		return "", false
	}
	title := strings.TrimSpace(rest)
	if title == "" {
		return "", false
	}
	return title, true
}

// matchOutlineSection resolves a draft heading to an outline entry by
// normalized title: exact match wins, then substring containment in either
// direction ("Introduction" matches "Introduction to the Topic").
func matchOutlineSection(title string, outline []document.OutlineSection) (document.OutlineSection, bool) {
	normalized := normalizeTitle(title)
	if normalized == "" {
		return document.OutlineSection{}, false
	}
	for _, section := range outline {
		if normalizeTitle(section.Title) == normalized {
			return section, true
		}
	}
	for _, section := range outline {
		candidate := normalizeTitle(section.Title)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, normalized) || strings.Contains(normalized, candidate) {
			return section, true
		}
	}
	return document.OutlineSection{}, false
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// materialChange reports a human-readable clause when a section changed in a
// way that matters for drafted prose, or "" for cosmetic edits.
func materialChange(before, after document.OutlineSection) string {
	var clauses []string
	if before.Title != after.Title {
		clauses = append(clauses, fmt.Sprintf("title changed from %q to %q", before.Title, after.Title))
	}
	if descriptionChangedMaterially(before.Description, after.Description) {
		clauses = append(clauses, "description substantially rewritten")
	}
	if before.EstimatedWords != after.EstimatedWords {
		clauses = append(clauses, fmt.Sprintf("target length changed from %d to %d words", before.EstimatedWords, after.EstimatedWords))
	}
	return strings.Join(clauses, ", ")
}

func descriptionChangedMaterially(before, after string) bool {
	if before == after {
		return false
	}
	delta := len(after) - len(before)
	if delta < 0 {
		delta = -delta
	}
	if delta > descriptionCharThreshold {
		return true
	}
	longest := len(before)
	if len(after) > longest {
		longest = len(after)
	}
	if longest == 0 {
		return false
	}
	return float64(delta)/float64(longest) > descriptionRatioThreshold
}

// previewText truncates draft content for inclusion in a conflict, breaking
// at a word boundary when one falls late enough in the window.
func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	window := string(runes[:previewLimit])
	boundary := strings.LastIndexByte(window, ' ')
	if boundary >= int(float64(previewLimit)*previewBoundaryRatio) {
		window = window[:boundary]
	}
	return strings.TrimRight(window, " ") + "..."
}

func summarize(conflicts []Conflict) string {
	counts := map[Type]int{}
	for _, conflict := range conflicts {
		counts[conflict.Type]++
	}
	var clauses []string
	for _, kind := range []Type{TypeDeleted, TypeModified, TypeReordered} {
		if counts[kind] > 0 {
			clauses = append(clauses, fmt.Sprintf("%d %s", counts[kind], kind))
		}
	}
	return "outline changes conflict with drafted sections: " + strings.Join(clauses, ", ")
}

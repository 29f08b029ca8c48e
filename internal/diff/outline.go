package diff

import (
	"fmt"
	"strings"

	"inkwell/engine/internal/document"
)

// ModifiedSection names an outline section whose fields changed, with a
// human-readable description of what changed.
type ModifiedSection struct {
	Title   string `json:"title"`
	Changes string `json:"changes"`
}

// OutlineDiff summarizes how an outline changed since the agent last saw it.
// Sections are always compared by id, never by position, so insertions do not
// cascade into spurious modifications.
type OutlineDiff struct {
	HasChanges       bool              `json:"has_changes"`
	Summary          string            `json:"summary"`
	AddedSections    []string          `json:"added_sections,omitempty"`
	RemovedSections  []string          `json:"removed_sections,omitempty"`
	ModifiedSections []ModifiedSection `json:"modified_sections,omitempty"`
	Reordered        bool              `json:"reordered,omitempty"`
}

// Outline compares two outlines. Nil means "no outline exists", which is
// distinct from an empty list.
func Outline(previous, current []document.OutlineSection) OutlineDiff {
	switch {
	case previous == nil && current == nil:
		return OutlineDiff{Summary: "no outline"}
	case previous == nil:
		diff := OutlineDiff{HasChanges: true, Summary: fmt.Sprintf("outline created with %d %s", len(current), pluralize("section", len(current)))}
		for _, section := range current {
			diff.AddedSections = append(diff.AddedSections, section.Title)
		}
		return diff
	case current == nil:
		diff := OutlineDiff{HasChanges: true, Summary: "outline removed"}
		for _, section := range previous {
			diff.RemovedSections = append(diff.RemovedSections, section.Title)
		}
		return diff
	}

	previousByID := make(map[string]document.OutlineSection, len(previous))
	for _, section := range previous {
		previousByID[section.ID] = section
	}
	currentByID := make(map[string]document.OutlineSection, len(current))
	for _, section := range current {
		currentByID[section.ID] = section
	}

	var diff OutlineDiff
	for _, section := range previous {
		if _, ok := currentByID[section.ID]; !ok {
			diff.RemovedSections = append(diff.RemovedSections, section.Title)
		}
	}
	for _, section := range current {
		before, ok := previousByID[section.ID]
		if !ok {
			diff.AddedSections = append(diff.AddedSections, section.Title)
			continue
		}
		if changes := sectionChanges(before, section); changes != "" {
			diff.ModifiedSections = append(diff.ModifiedSections, ModifiedSection{Title: section.Title, Changes: changes})
		}
	}

	// A pure reorder is only meaningful when membership did not change; adds
	// and removes already imply position churn.
	if len(diff.AddedSections) == 0 && len(diff.RemovedSections) == 0 {
		diff.Reordered = !sameIDOrder(previous, current)
	}

	diff.HasChanges = len(diff.AddedSections) > 0 || len(diff.RemovedSections) > 0 ||
		len(diff.ModifiedSections) > 0 || diff.Reordered
	diff.Summary = outlineSummary(diff)
	return diff
}

func sectionChanges(before, after document.OutlineSection) string {
	var clauses []string
	if before.Title != after.Title {
		clauses = append(clauses, fmt.Sprintf("title changed from %q to %q", before.Title, after.Title))
	}
	if before.Description != after.Description {
		clauses = append(clauses, "description changed")
	}
	if before.EstimatedWords != after.EstimatedWords {
		clauses = append(clauses, fmt.Sprintf("estimated words changed from %d to %d", before.EstimatedWords, after.EstimatedWords))
	}
	return strings.Join(clauses, ", ")
}

func sameIDOrder(previous, current []document.OutlineSection) bool {
	if len(previous) != len(current) {
		return false
	}
	for i := range previous {
		if previous[i].ID != current[i].ID {
			return false
		}
	}
	return true
}

func outlineSummary(diff OutlineDiff) string {
	var clauses []string
	if n := len(diff.AddedSections); n > 0 {
		clauses = append(clauses, fmt.Sprintf("added %d %s (%s)", n, pluralize("section", n), strings.Join(diff.AddedSections, ", ")))
	}
	if n := len(diff.RemovedSections); n > 0 {
		clauses = append(clauses, fmt.Sprintf("removed %d %s (%s)", n, pluralize("section", n), strings.Join(diff.RemovedSections, ", ")))
	}
	if n := len(diff.ModifiedSections); n > 0 {
		titles := make([]string, 0, n)
		for _, section := range diff.ModifiedSections {
			titles = append(titles, section.Title)
		}
		clauses = append(clauses, fmt.Sprintf("modified %d %s (%s)", n, pluralize("section", n), strings.Join(titles, ", ")))
	}
	if diff.Reordered {
		clauses = append(clauses, "sections reordered")
	}
	if len(clauses) == 0 {
		return "no outline changes"
	}
	return strings.Join(clauses, "; ")
}

package diff

import (
	"fmt"
	"strings"
)

const (
	maxSampleLines   = 3
	maxSampleLineLen = 80
	maxDiffTextLen   = 500
)

// ContentDiff summarizes how document content changed since the agent last
// saw it. It is rendered into the agent's context, not shown raw to users.
type ContentDiff struct {
	HasChanges   bool   `json:"has_changes"`
	Summary      string `json:"summary"`
	AddedLines   int    `json:"added_lines"`
	RemovedLines int    `json:"removed_lines"`
	AddedWords   int    `json:"added_words"`
	RemovedWords int    `json:"removed_words"`
	DiffText     string `json:"diff_text,omitempty"`
}

// Content compares two content strings. Line changes are detected by set
// difference on exact line text, not positional alignment: editing a word
// inside a line reports one removed plus one added line. Word deltas are
// computed independently so single-line edits still register.
//
// The identity short-circuit runs before line-ending normalization, so a
// CRLF-vs-LF-only change reports hasChanges with zero line and word deltas.
func Content(previous, current string) ContentDiff {
	if previous == current {
		return ContentDiff{Summary: "no changes"}
	}

	previousLines := splitLines(previous)
	currentLines := splitLines(current)

	currentSet := make(map[string]bool, len(currentLines))
	for _, line := range currentLines {
		currentSet[line] = true
	}
	previousSet := make(map[string]bool, len(previousLines))
	for _, line := range previousLines {
		previousSet[line] = true
	}

	var removed []string
	for _, line := range previousLines {
		if !currentSet[line] {
			removed = append(removed, line)
		}
	}
	var added []string
	for _, line := range currentLines {
		if !previousSet[line] {
			added = append(added, line)
		}
	}

	previousWords := len(strings.Fields(previous))
	currentWords := len(strings.Fields(current))
	addedWords := 0
	removedWords := 0
	if currentWords > previousWords {
		addedWords = currentWords - previousWords
	} else {
		removedWords = previousWords - currentWords
	}

	diff := ContentDiff{
		HasChanges:   true,
		AddedLines:   len(added),
		RemovedLines: len(removed),
		AddedWords:   addedWords,
		RemovedWords: removedWords,
	}
	diff.Summary = contentSummary(diff)
	diff.DiffText = sampleDiffText(removed, added)
	return diff
}

func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(normalized, "\n")
}

func contentSummary(diff ContentDiff) string {
	var clauses []string
	if diff.AddedLines > 0 {
		clauses = append(clauses, fmt.Sprintf("added %d %s", diff.AddedLines, pluralize("line", diff.AddedLines)))
	}
	if diff.RemovedLines > 0 {
		clauses = append(clauses, fmt.Sprintf("removed %d %s", diff.RemovedLines, pluralize("line", diff.RemovedLines)))
	}
	if len(clauses) == 0 {
		if diff.AddedWords > 0 {
			clauses = append(clauses, fmt.Sprintf("added %d %s", diff.AddedWords, pluralize("word", diff.AddedWords)))
		}
		if diff.RemovedWords > 0 {
			clauses = append(clauses, fmt.Sprintf("removed %d %s", diff.RemovedWords, pluralize("word", diff.RemovedWords)))
		}
	}
	if len(clauses) == 0 {
		return "content modified"
	}
	return strings.Join(clauses, ", ")
}

func sampleDiffText(removed, added []string) string {
	var b strings.Builder
	writeSamples(&b, removed, "-")
	writeSamples(&b, added, "+")
	text := strings.TrimRight(b.String(), "\n")
	if runes := []rune(text); len(runes) > maxDiffTextLen {
		text = string(runes[:maxDiffTextLen-3]) + "..."
	}
	return text
}

func writeSamples(b *strings.Builder, lines []string, marker string) {
	count := len(lines)
	if count == 0 {
		return
	}
	shown := count
	if shown > maxSampleLines {
		shown = maxSampleLines
	}
	for _, line := range lines[:shown] {
		b.WriteString(marker)
		b.WriteString(" ")
		b.WriteString(truncateLine(line, maxSampleLineLen))
		b.WriteString("\n")
	}
	if count > shown {
		b.WriteString(fmt.Sprintf("  (%d more)\n", count-shown))
	}
}

func truncateLine(line string, limit int) string {
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return string(runes[:limit-3]) + "..."
}

func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

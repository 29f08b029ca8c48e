package diff

import (
	"strings"
	"testing"

	"inkwell/engine/internal/document"
)

func section(id, title string) document.OutlineSection {
	return document.OutlineSection{ID: id, Title: title, Description: "about " + title}
}

func TestOutlineNilToNil(t *testing.T) {
	diff := Outline(nil, nil)
	if diff.HasChanges {
		t.Fatalf("nil to nil reported changes: %+v", diff)
	}
}

func TestOutlineCreated(t *testing.T) {
	diff := Outline(nil, []document.OutlineSection{section("1", "Intro"), section("2", "Body")})
	if !diff.HasChanges {
		t.Fatalf("expected changes")
	}
	if len(diff.AddedSections) != 2 {
		t.Fatalf("expected 2 added, got %v", diff.AddedSections)
	}
	if !strings.Contains(diff.Summary, "created with 2 sections") {
		t.Fatalf("unexpected summary: %q", diff.Summary)
	}
}

func TestOutlineRemovedEntirely(t *testing.T) {
	diff := Outline([]document.OutlineSection{section("1", "A")}, nil)
	if !diff.HasChanges {
		t.Fatalf("expected changes")
	}
	if len(diff.RemovedSections) != 1 || diff.RemovedSections[0] != "A" {
		t.Fatalf("expected removed [A], got %v", diff.RemovedSections)
	}
	if !strings.Contains(diff.Summary, "removed") {
		t.Fatalf("unexpected summary: %q", diff.Summary)
	}
}

func TestOutlineRenameIsModificationNotAddRemove(t *testing.T) {
	previous := []document.OutlineSection{section("1", "Old Title")}
	current := []document.OutlineSection{section("1", "New Title")}
	current[0].Description = previous[0].Description
	diff := Outline(previous, current)
	if len(diff.AddedSections) != 0 || len(diff.RemovedSections) != 0 {
		t.Fatalf("rename leaked into add/remove: %+v", diff)
	}
	if len(diff.ModifiedSections) != 1 {
		t.Fatalf("expected 1 modification, got %+v", diff.ModifiedSections)
	}
	if !strings.Contains(diff.ModifiedSections[0].Changes, `"Old Title"`) {
		t.Fatalf("change clause missing old title: %q", diff.ModifiedSections[0].Changes)
	}
}

func TestOutlineMultipleFieldChanges(t *testing.T) {
	previous := []document.OutlineSection{{ID: "1", Title: "A", Description: "x", EstimatedWords: 100}}
	current := []document.OutlineSection{{ID: "1", Title: "A", Description: "y", EstimatedWords: 300}}
	diff := Outline(previous, current)
	if len(diff.ModifiedSections) != 1 {
		t.Fatalf("expected 1 modification, got %+v", diff)
	}
	changes := diff.ModifiedSections[0].Changes
	if !strings.Contains(changes, "description changed") || !strings.Contains(changes, "estimated words changed from 100 to 300") {
		t.Fatalf("unexpected change clause: %q", changes)
	}
	if !strings.Contains(changes, ", ") {
		t.Fatalf("expected comma-joined clauses: %q", changes)
	}
}

func TestOutlinePureReorder(t *testing.T) {
	a, b, c := section("1", "A"), section("2", "B"), section("3", "C")
	diff := Outline(
		[]document.OutlineSection{a, b, c},
		[]document.OutlineSection{c, a, b},
	)
	if !diff.Reordered {
		t.Fatalf("expected reorder flag")
	}
	if !diff.HasChanges {
		t.Fatalf("expected changes")
	}
	if !strings.Contains(diff.Summary, "reordered") {
		t.Fatalf("unexpected summary: %q", diff.Summary)
	}
}

func TestOutlineReorderSuppressedByMembershipChange(t *testing.T) {
	a, b := section("1", "A"), section("2", "B")
	d := section("4", "D")
	diff := Outline(
		[]document.OutlineSection{a, b},
		[]document.OutlineSection{d, b, a},
	)
	if diff.Reordered {
		t.Fatalf("reorder should not be flagged alongside adds: %+v", diff)
	}
	if strings.Contains(diff.Summary, "reordered") {
		t.Fatalf("summary should not mention reorder: %q", diff.Summary)
	}
}

func TestOutlineInsertionDoesNotShiftComparisons(t *testing.T) {
	a, b := section("1", "A"), section("2", "B")
	inserted := section("9", "Inserted")
	diff := Outline(
		[]document.OutlineSection{a, b},
		[]document.OutlineSection{a, inserted, b},
	)
	if len(diff.AddedSections) != 1 || diff.AddedSections[0] != "Inserted" {
		t.Fatalf("expected only the inserted section added: %+v", diff)
	}
	if len(diff.ModifiedSections) != 0 {
		t.Fatalf("positional shift misreported as modification: %+v", diff.ModifiedSections)
	}
}

package snapshot

import (
	"testing"

	"inkwell/engine/internal/document"
)

func testDoc() *document.Document {
	return &document.Document{
		ID:      "doc-1",
		Title:   "Essay",
		Content: "Opening line.",
		Stage:   document.StageDraft,
		Outline: []document.OutlineSection{
			{ID: "s1", Title: "Intro", Description: "opening"},
		},
	}
}

func TestChangesSinceNoMutation(t *testing.T) {
	tracker := NewTracker()
	doc := testDoc()
	tracker.Capture(doc)

	if changes := tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("unchanged document reported changes: %+v", changes)
	}
	// Repeated checks stay clean without recapturing.
	if changes := tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("second check reported changes: %+v", changes)
	}
}

func TestChangesSinceContentEdit(t *testing.T) {
	tracker := NewTracker()
	doc := testDoc()
	tracker.Capture(doc)

	doc.Content = "Opening line, revised."
	changes := tracker.ChangesSince(doc)
	if changes == nil {
		t.Fatalf("content edit not detected")
	}
	if !changes.ContentChanged || changes.OutlineChanged || changes.StageChanged {
		t.Fatalf("unexpected change flags: %+v", changes)
	}
	if changes.PreviousContent != "Opening line." {
		t.Fatalf("previous content lost: %q", changes.PreviousContent)
	}
}

func TestSnapshotIsolatedFromLaterEdits(t *testing.T) {
	tracker := NewTracker()
	doc := testDoc()
	tracker.Capture(doc)

	doc.Outline[0].Title = "Revised Intro"
	changes := tracker.ChangesSince(doc)
	if changes == nil || !changes.OutlineChanged {
		t.Fatalf("in-place outline edit not detected: %+v", changes)
	}
	if changes.PreviousOutline[0].Title != "Intro" {
		t.Fatalf("snapshot shares memory with live outline: %+v", changes.PreviousOutline)
	}
}

func TestNilAndEmptyOutlineEquivalent(t *testing.T) {
	tracker := NewTracker()
	doc := testDoc()
	doc.Outline = nil
	tracker.Capture(doc)

	doc.Outline = []document.OutlineSection{}
	if changes := tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("nil vs empty outline reported as change: %+v", changes)
	}
}

func TestCaptureResynchronizes(t *testing.T) {
	tracker := NewTracker()
	doc := testDoc()
	tracker.Capture(doc)

	doc.Stage = document.StageEdits
	if changes := tracker.ChangesSince(doc); changes == nil || !changes.StageChanged {
		t.Fatalf("stage change not detected: %+v", changes)
	}

	tracker.Capture(doc)
	if changes := tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("recapture did not clear changes: %+v", changes)
	}
}

func TestUncapturedDocument(t *testing.T) {
	tracker := NewTracker()
	if changes := tracker.ChangesSince(testDoc()); changes != nil {
		t.Fatalf("uncaptured document reported changes: %+v", changes)
	}
}

func TestForget(t *testing.T) {
	tracker := NewTracker()
	doc := testDoc()
	tracker.Capture(doc)
	tracker.Forget(doc.ID)
	doc.Content = "edited"
	if changes := tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("forgotten document reported changes: %+v", changes)
	}
}

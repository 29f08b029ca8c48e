package snapshot

import (
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"inkwell/engine/internal/document"
)

// Snapshot is the agent's last-synchronized view of one document. Fields are
// deep copies; later edits to the live document never leak into it.
type Snapshot struct {
	Content string
	Outline []document.OutlineSection
	Stage   document.Stage
}

// Changes describes what moved between a snapshot and the live document.
// A nil *Changes means the agent's view is still current.
type Changes struct {
	ContentChanged bool
	OutlineChanged bool
	StageChanged   bool

	PreviousContent string
	CurrentContent  string
	PreviousOutline []document.OutlineSection
	CurrentOutline  []document.OutlineSection
	PreviousStage   document.Stage
	CurrentStage    document.Stage
}

// Tracker holds per-document snapshots. Safe for concurrent use; the engine
// consults it from the agent loop while RPC handlers apply user edits.
type Tracker struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snapshots: make(map[string]Snapshot)}
}

// Capture records the document's current state as the agent's view.
func (t *Tracker) Capture(doc *document.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[doc.ID] = Snapshot{
		Content: doc.Content,
		Outline: document.CloneOutline(doc.Outline),
		Stage:   doc.Stage,
	}
}

// ChangesSince compares the live document against the last captured snapshot.
// It returns nil when nothing moved, or when the document was never captured.
// The comparison never mutates the snapshot; call Capture to resynchronize.
func (t *Tracker) ChangesSince(doc *document.Document) *Changes {
	t.mu.Lock()
	snap, ok := t.snapshots[doc.ID]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	changes := &Changes{
		ContentChanged: snap.Content != doc.Content,
		OutlineChanged: !cmp.Equal(snap.Outline, doc.Outline, cmpopts.EquateEmpty()),
		StageChanged:   snap.Stage != doc.Stage,
	}
	if !changes.ContentChanged && !changes.OutlineChanged && !changes.StageChanged {
		return nil
	}

	changes.PreviousContent = snap.Content
	changes.CurrentContent = doc.Content
	changes.PreviousOutline = snap.Outline
	changes.CurrentOutline = document.CloneOutline(doc.Outline)
	changes.PreviousStage = snap.Stage
	changes.CurrentStage = doc.Stage
	return changes
}

// Forget drops the snapshot for a document, typically on close.
func (t *Tracker) Forget(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, docID)
}

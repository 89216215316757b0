package persistence

import (
	"sync"

	"sceneforge/internal/production"
)

const defaultHistoryDepth = 50

type snapshot struct {
	state  *production.Production
	action string
}

// History keeps bounded undo/redo stacks of deep-copied productions.
type History struct {
	mu     sync.Mutex
	depth  int
	past   []snapshot
	future []snapshot
}

// NewHistory returns a history keeping at most depth undo steps.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	return &History{depth: depth}
}

// Record stores a copy of before, the state preceding the edit labelled
// action, and discards any redo steps.
func (h *History) Record(before *production.Production, action string) {
	if before == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = append(h.past, snapshot{state: before.Clone(), action: action})
	if over := len(h.past) - h.depth; over > 0 {
		h.past = append([]snapshot(nil), h.past[over:]...)
	}
	h.future = nil
}

// Undo returns the state before the most recent edit. current is kept so
// Redo can restore it.
func (h *History) Undo(current *production.Production) (*production.Production, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.past) == 0 || current == nil {
		return nil, "", false
	}
	last := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, snapshot{state: current.Clone(), action: last.action})
	return last.state.Clone(), last.action, true
}

// Redo reapplies the most recently undone edit.
func (h *History) Redo(current *production.Production) (*production.Production, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.future) == 0 || current == nil {
		return nil, "", false
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, snapshot{state: current.Clone(), action: next.action})
	return next.state.Clone(), next.action, true
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// PreviousAction labels the edit Undo would revert.
func (h *History) PreviousAction() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.past) == 0 {
		return ""
	}
	return h.past[len(h.past)-1].action
}

// NextAction labels the edit Redo would reapply.
func (h *History) NextAction() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.future) == 0 {
		return ""
	}
	return h.future[len(h.future)-1].action
}

// Reset drops all snapshots.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
}

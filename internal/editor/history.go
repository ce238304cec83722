package editor

import "gameflow/internal/domain/flow"

// DefaultHistorySize bounds the undo stack.
const DefaultHistorySize = 30

// History is a bounded undo/redo stack of whole-graph snapshots.
type History struct {
	size   int
	past   []flow.Graph // oldest first
	future []flow.Graph // next redo first
}

// NewHistory creates an empty history holding at most size snapshots.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Snapshot records current as the state to return to on undo. The oldest
// entry is evicted once the stack is full and the redo stack is cleared.
func (h *History) Snapshot(current flow.Graph) {
	h.push(current.Clone())
	h.future = nil
}

// Undo pops the most recent snapshot and pushes current onto the redo stack.
func (h *History) Undo(current flow.Graph) (flow.Graph, bool) {
	if len(h.past) == 0 {
		return flow.Graph{}, false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]flow.Graph{current.Clone()}, h.future...)
	return prev.Clone(), true
}

// Redo pops the next redo state and pushes current onto the undo stack.
func (h *History) Redo(current flow.Graph) (flow.Graph, bool) {
	if len(h.future) == 0 {
		return flow.Graph{}, false
	}
	next := h.future[0]
	h.future = h.future[1:]
	h.push(current.Clone())
	return next.Clone(), true
}

// CanUndo reports whether an undo is possible.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether a redo is possible.
func (h *History) CanRedo() bool { return len(h.future) > 0 }

// Depth returns the sizes of the undo and redo stacks.
func (h *History) Depth() (past, future int) { return len(h.past), len(h.future) }

// Reset drops both stacks.
func (h *History) Reset() {
	h.past = nil
	h.future = nil
}

func (h *History) push(g flow.Graph) {
	h.past = append(h.past, g)
	if over := len(h.past) - h.size; over > 0 {
		h.past = append(h.past[:0:0], h.past[over:]...)
	}
}

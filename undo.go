package states

import (
	"github.com/google/uuid"

	"github.com/thedude61636/states-rebuilder/internal/snapshot"
)

// undoEntry is an immutable snapshot of a cell's settled state, pushed
// before a mutation commits and popped on manual or automatic undo.
type undoEntry[T any] struct {
	id     string
	value  T
	status Status
}

// undoStack holds a bounded history of prior values. The oldest entry is
// evicted first when the configured depth is exceeded.
type undoStack[T any] struct {
	max     int
	entries []undoEntry[T]
}

func newUndoStack[T any](max int) *undoStack[T] {
	if max <= 0 {
		return nil
	}
	return &undoStack[T]{max: max}
}

func (s *undoStack[T]) push(value T, status Status) {
	if s == nil {
		return
	}
	s.entries = append(s.entries, undoEntry[T]{
		id:     uuid.NewString(),
		value:  snapshot.Clone(value),
		status: status,
	})
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
}

func (s *undoStack[T]) pop() (undoEntry[T], bool) {
	if s == nil || len(s.entries) == 0 {
		return undoEntry[T]{}, false
	}
	entry := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return entry, true
}

func (s *undoStack[T]) len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

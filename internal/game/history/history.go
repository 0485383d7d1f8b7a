// Package history implements the bounded undo stack of state snapshots.
package history

// DefaultLimit bounds the stack. A 15x15 game cannot exceed 225 placements,
// so the limit only acts as a memory guard.
const DefaultLimit = 128

// Stack is a bounded LIFO of full-state snapshots. The zero value is not
// usable; construct with New.
type Stack[T any] struct {
	frames []T
	limit  int
}

// New returns an empty stack bounded to limit frames. Non-positive limits
// fall back to DefaultLimit.
func New[T any](limit int) *Stack[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stack[T]{limit: limit}
}

// Push appends a frame, discarding the oldest frame once the limit is hit.
func (s *Stack[T]) Push(frame T) {
	if len(s.frames) >= s.limit {
		copy(s.frames, s.frames[1:])
		s.frames[len(s.frames)-1] = frame
		return
	}
	s.frames = append(s.frames, frame)
}

// Pop removes and returns the most recent frame. The second return is false
// when the stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	if len(s.frames) == 0 {
		var zero T
		return zero, false
	}
	frame := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return frame, true
}

// Len returns the number of stored frames.
func (s *Stack[T]) Len() int {
	return len(s.frames)
}

// Clear discards every frame.
func (s *Stack[T]) Clear() {
	s.frames = s.frames[:0]
}

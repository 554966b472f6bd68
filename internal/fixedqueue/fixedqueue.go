// Package fixedqueue provides a bounded FIFO buffer that keeps the last N
// values and supports O(1) indexed lookup counted from the oldest value.
//
// A Queue is not safe for concurrent use. Owners that share one across
// goroutines must serialize access themselves.
package fixedqueue

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned by New when capacity is less than 1.
var ErrInvalidCapacity = errors.New("fixedqueue: capacity must be >= 1")

// Queue is a fixed-capacity circular buffer. When full, Add overwrites the
// oldest element.
type Queue[T any] struct {
	buf   []T // preallocated, len(buf) == capacity
	start int // position of the oldest element
	size  int
}

// New creates an empty queue holding at most capacity elements.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCapacity, capacity)
	}
	return &Queue[T]{buf: make([]T, capacity)}, nil
}

// Add appends v, evicting the oldest element if the queue is full.
func (q *Queue[T]) Add(v T) {
	if q.size < len(q.buf) {
		q.buf[(q.start+q.size)%len(q.buf)] = v
		q.size++
		return
	}
	// Full: the slot at start holds the oldest value.
	q.buf[q.start] = v
	q.start = (q.start + 1) % len(q.buf)
}

// At returns the element at position i, where 0 is the oldest retained
// element. ok is false when i is outside [0, Size()).
func (q *Queue[T]) At(i int) (v T, ok bool) {
	if i < 0 || i >= q.size {
		return v, false
	}
	return q.buf[(q.start+i)%len(q.buf)], true
}

// Size returns the number of retained elements.
func (q *Queue[T]) Size() int { return q.size }

// Cap returns the maximum number of elements.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Full reports whether Size() == Cap().
func (q *Queue[T]) Full() bool { return q.size == len(q.buf) }

// Clear removes all elements. Capacity is unchanged.
func (q *Queue[T]) Clear() {
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.start = 0
	q.size = 0
}

// Values returns a copy of the retained elements, oldest first.
func (q *Queue[T]) Values() []T {
	out := make([]T, q.size)
	for i := range out {
		out[i] = q.buf[(q.start+i)%len(q.buf)]
	}
	return out
}

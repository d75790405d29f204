package stats

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a window asks for more samples than
// the history holds.
var ErrInsufficientData = errors.New("insufficient data")

// RollingHistory keeps the most recent values in insertion order.
// Capacity is fixed at construction and the oldest value is evicted first.
//
// It is not safe for concurrent use; each instrument or pair owns its own
// histories exclusively.
type RollingHistory[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRollingHistory creates an empty history holding at most capacity values.
func NewRollingHistory[T any](capacity int) (*RollingHistory[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("rolling history capacity must be positive, got %d", capacity)
	}
	return &RollingHistory[T]{buf: make([]T, capacity)}, nil
}

// Push appends a value, evicting the oldest when full.
func (h *RollingHistory[T]) Push(v T) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = v
		h.size++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored values.
func (h *RollingHistory[T]) Len() int { return h.size }

// Window returns a copy of the k most recent values, oldest first.
func (h *RollingHistory[T]) Window(k int) ([]T, error) {
	if k <= 0 || k > h.size {
		return nil, fmt.Errorf("window %d over %d samples: %w", k, h.size, ErrInsufficientData)
	}
	out := make([]T, k)
	offset := h.size - k
	for i := 0; i < k; i++ {
		out[i] = h.buf[(h.start+offset+i)%len(h.buf)]
	}
	return out, nil
}

// Values returns a copy of every stored value, oldest first.
func (h *RollingHistory[T]) Values() []T {
	if h.size == 0 {
		return []T{}
	}
	out, _ := h.Window(h.size)
	return out
}

// Last returns the most recent value.
func (h *RollingHistory[T]) Last() (T, bool) {
	var zero T
	if h.size == 0 {
		return zero, false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}

// Clear drops all values and keeps the capacity.
func (h *RollingHistory[T]) Clear() {
	var zero T
	for i := range h.buf {
		h.buf[i] = zero
	}
	h.start = 0
	h.size = 0
}

// Restore replaces the contents with values (oldest first). Only the most
// recent capacity values are kept.
func (h *RollingHistory[T]) Restore(values []T) {
	h.Clear()
	if len(values) > len(h.buf) {
		values = values[len(values)-len(h.buf):]
	}
	for _, v := range values {
		h.Push(v)
	}
}

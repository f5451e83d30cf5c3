// Package buffer provides a thread-safe bounded FIFO ring used for
// refresh events and per-component health history.
package buffer

import (
	"sync"
)

// Ring is a fixed-capacity append-only buffer. Appending past capacity
// evicts the oldest entry first.
type Ring[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
}

// New creates a Ring with the specified capacity. Capacity below 1 is
// treated as 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an item. If the ring is full, the oldest item is dropped.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) >= r.capacity {
		// Drop oldest (shift left)
		copy(r.data, r.data[1:])
		r.data = r.data[:len(r.data)-1]
	}
	r.data = append(r.data, item)
}

// Items returns a copy of the buffered items in arrival order.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.data))
	copy(out, r.data)
	return out
}

// Last returns up to n of the most recent items in arrival order.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || len(r.data) == 0 {
		return nil
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	out := make([]T, n)
	copy(out, r.data[len(r.data)-n:])
	return out
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Cap returns the configured capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Clear removes all buffered items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = r.data[:0]
}

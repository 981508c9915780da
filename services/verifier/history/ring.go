// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history provides bounded, append-only storage primitives for
// verification and rollback records.
package history

// RingBuffer is a fixed-capacity FIFO buffer. When full, Push evicts
// the oldest element.
//
// Thread Safety:
//
//	RingBuffer is NOT safe for concurrent use. Callers own locking;
//	the stores in this package wrap it with a mutex.
type RingBuffer[T any] struct {
	buf   []T
	head  int // index of oldest element
	count int
}

// NewRingBuffer creates a ring buffer with the given capacity.
// Capacity must be positive; non-positive values are clamped to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{buf: make([]T, capacity)}
}

// Push appends an element, evicting the oldest when full.
// Returns the evicted element and true if an eviction occurred.
func (r *RingBuffer[T]) Push(v T) (evicted T, wasFull bool) {
	if r.count == len(r.buf) {
		evicted = r.buf[r.head]
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.head+r.count)%len(r.buf)] = v
	r.count++
	return evicted, false
}

// Len returns the number of stored elements.
func (r *RingBuffer[T]) Len() int { return r.count }

// Cap returns the buffer capacity.
func (r *RingBuffer[T]) Cap() int { return len(r.buf) }

// IsFull reports whether the next Push will evict.
func (r *RingBuffer[T]) IsFull() bool { return r.count == len(r.buf) }

// At returns the element at position i, oldest first.
func (r *RingBuffer[T]) At(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

// ForEach visits elements oldest first. Return false to stop early.
func (r *RingBuffer[T]) ForEach(fn func(T) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.At(i)) {
			return
		}
	}
}

// Slice returns a copy of the contents, oldest first.
func (r *RingBuffer[T]) Slice() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.At(i)
	}
	return out
}

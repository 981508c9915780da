// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// BoundedLog is an append-only log with a fixed capacity and optional
// JSON persistence. Oldest entries are evicted once the cap is reached.
//
// # Description
//
// Used for rollback attempt history and pipeline verification history,
// both of which are bounded rather than growing without limit.
// Appends are serialized through a single writer lock; reads copy the
// log contents at call time.
//
// # Thread Safety
//
// Safe for concurrent use.
type BoundedLog[T any] struct {
	mu      sync.RWMutex
	ring    *RingBuffer[T]
	dataDir string
	name    string
}

// NewBoundedLog creates a log holding at most capacity entries.
//
// Inputs:
//
//	capacity - Maximum retained entries. Clamped to 1 if non-positive.
//	dataDir - Directory for JSON persistence. Empty for memory-only.
//	name - File stem for persistence ("{name}.json").
//
// Outputs:
//
//	*BoundedLog[T] - Ready-to-use log, pre-loaded from disk when a
//	persisted file exists.
func NewBoundedLog[T any](capacity int, dataDir, name string) *BoundedLog[T] {
	log := &BoundedLog[T]{
		ring:    NewRingBuffer[T](capacity),
		dataDir: dataDir,
		name:    name,
	}
	if dataDir != "" {
		// Best effort; a missing or corrupt file starts the log fresh.
		_ = log.load()
	}
	return log
}

// Append adds an entry, evicting the oldest once the cap is reached.
func (l *BoundedLog[T]) Append(entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.Push(entry)
}

// Len returns the number of retained entries.
func (l *BoundedLog[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Len()
}

// Recent returns up to limit entries, most recent first. A non-positive
// limit returns everything.
func (l *BoundedLog[T]) Recent(limit int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.ring.Len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]T, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.ring.At(i))
	}
	return out
}

// All returns a copy of the log, oldest first.
func (l *BoundedLog[T]) All() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Slice()
}

// Persist writes the log contents to "{dataDir}/{name}.json".
// No-op when the log is memory-only.
func (l *BoundedLog[T]) Persist() error {
	if l.dataDir == "" {
		return nil
	}

	l.mu.RLock()
	entries := l.ring.Slice()
	l.mu.RUnlock()

	if err := os.MkdirAll(l.dataDir, 0750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal log entries: %w", err)
	}
	return os.WriteFile(l.path(), data, 0640)
}

// Close persists the log and releases resources.
func (l *BoundedLog[T]) Close() error {
	return l.Persist()
}

func (l *BoundedLog[T]) path() string {
	return filepath.Join(l.dataDir, l.name+".json")
}

func (l *BoundedLog[T]) load() error {
	data, err := os.ReadFile(l.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.ring.Push(e)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"sort"
	"sync"
)

// Store persists sealed snapshots. Implementations must provide atomic
// append and point lookup by id.
type Store interface {
	// Save stores a sealed snapshot. Rejects unsealed snapshots.
	Save(ctx context.Context, snap *Snapshot) error

	// Get returns the snapshot with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Snapshot, error)

	// Latest returns the most recently captured snapshot, or
	// ErrNotFound when none exist.
	Latest(ctx context.Context) (*Snapshot, error)

	// List returns all stored snapshots, newest first.
	List(ctx context.Context) ([]*Snapshot, error)

	// Delete removes a snapshot. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	// Close releases store resources.
	Close() error
}

// DefaultHistoryCap is the number of snapshots a MemoryStore retains
// before discarding the oldest.
const DefaultHistoryCap = 50

// MemoryStore is an in-process Store bounded by a history cap.
//
// # Thread Safety
//
// Safe for concurrent use. Writes are serialized through a single
// writer lock; reads return deep copies.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Snapshot
	order []string // insertion order, oldest first
	cap   int
}

// NewMemoryStore creates a MemoryStore retaining at most historyCap
// snapshots. Non-positive caps fall back to DefaultHistoryCap.
func NewMemoryStore(historyCap int) *MemoryStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &MemoryStore{
		byID: make(map[string]*Snapshot),
		cap:  historyCap,
	}
}

// Save stores a sealed snapshot, evicting the oldest beyond the cap.
func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	if snap.Checksum == "" {
		return ErrNotSealed
	}
	if err := snap.ValidateStructure(); err != nil {
		return err
	}

	stored, err := snap.Clone()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[stored.ID]; !exists {
		m.order = append(m.order, stored.ID)
	}
	m.byID[stored.ID] = stored

	for len(m.order) > m.cap {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.byID, oldest)
	}
	return nil
}

// Get returns a copy of the snapshot with the given id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.byID[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone()
}

// Latest returns a copy of the most recently captured snapshot.
func (m *MemoryStore) Latest(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Snapshot
	for _, snap := range m.byID {
		if latest == nil || snap.Timestamp.After(latest.Timestamp) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone()
}

// List returns copies of all snapshots, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]*Snapshot, error) {
	m.mu.RLock()
	snaps := make([]*Snapshot, 0, len(m.byID))
	for _, snap := range m.byID {
		snaps = append(snaps, snap)
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})

	out := make([]*Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		c, err := snap.Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes a snapshot by id.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return nil
	}
	delete(m.byID, id)
	for i, stored := range m.order {
		if stored == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

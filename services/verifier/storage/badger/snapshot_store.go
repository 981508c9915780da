// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/sentinel/pkg/validation"
	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

const snapshotKeyPrefix = "snapshot/"

// SnapshotStore is a durable snapshot.Store backed by BadgerDB.
//
// # Description
//
// Snapshots are stored as JSON values under "snapshot/{id}" keys.
// Saves are single Badger transactions, which gives the atomic-append
// guarantee the rollback engine requires.
//
// # Thread Safety
//
// Safe for concurrent use.
type SnapshotStore struct {
	db  *badger.DB
	cap int
}

// NewSnapshotStore creates a store over an open BadgerDB handle.
//
// Inputs:
//
//	db - Open database. Must not be nil.
//	historyCap - Maximum retained snapshots; non-positive falls back to
//	snapshot.DefaultHistoryCap.
//
// Outputs:
//
//	*SnapshotStore - Ready-to-use store.
//	error - Non-nil if db is nil.
func NewSnapshotStore(db *badger.DB, historyCap int) (*SnapshotStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if historyCap <= 0 {
		historyCap = snapshot.DefaultHistoryCap
	}
	return &SnapshotStore{db: db, cap: historyCap}, nil
}

// Save stores a sealed snapshot and prunes beyond the history cap.
func (s *SnapshotStore) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrNilSnapshot
	}
	if snap.Checksum == "" {
		return snapshot.ErrNotSealed
	}
	if err := snap.ValidateStructure(); err != nil {
		return err
	}
	if err := validation.ValidateID(snap.ID); err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKeyPrefix+snap.ID), data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}

	return s.prune(ctx)
}

// Get returns the snapshot with the given id.
func (s *SnapshotStore) Get(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if err := validation.ValidateID(id); err != nil {
		return nil, fmt.Errorf("snapshot id: %w", err)
	}

	var snap snapshot.Snapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, snapshot.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// Latest returns the most recently captured snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (*snapshot.Snapshot, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, snapshot.ErrNotFound
	}
	return snaps[0], nil
}

// List returns all stored snapshots, newest first.
func (s *SnapshotStore) List(ctx context.Context) ([]*snapshot.Snapshot, error) {
	var snaps []*snapshot.Snapshot

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var snap snapshot.Snapshot
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				return err
			}
			snaps = append(snaps, &snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

// Delete removes a snapshot by id. Unknown ids are not an error.
func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(snapshotKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// prune drops the oldest snapshots beyond the history cap.
func (s *SnapshotStore) prune(ctx context.Context) error {
	snaps, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(snaps) <= s.cap {
		return nil
	}
	for _, snap := range snaps[s.cap:] {
		if err := s.Delete(ctx, snap.ID); err != nil {
			return err
		}
	}
	return nil
}

// Ensure SnapshotStore implements snapshot.Store.
var _ snapshot.Store = (*SnapshotStore)(nil)

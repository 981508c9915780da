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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sentinel/services/verifier/snapshot"
)

func openTestStore(t *testing.T, cap int) *SnapshotStore {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSnapshotStore(db, cap)
	require.NoError(t, err)
	return store
}

func sealedSnapshot(t *testing.T, id string, ts time.Time) *snapshot.Snapshot {
	t.Helper()
	snap := &snapshot.Snapshot{
		ID:        id,
		Timestamp: ts,
		AgentStates: map[string]snapshot.AgentState{
			"agent-1": {ID: "agent-1", Status: "active"},
		},
		Metadata: map[string]string{"reason": "test"},
	}
	require.NoError(t, snap.Seal())
	return snap
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 10)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	snap := sealedSnapshot(t, "snap-1", base)
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Get(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, got.Checksum)
	assert.NoError(t, got.VerifyIntegrity(), "persisted snapshot must survive intact")
}

func TestSnapshotStore_GetUnknown(t *testing.T) {
	store := openTestStore(t, 10)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestSnapshotStore_RejectsUnsealed(t *testing.T) {
	store := openTestStore(t, 10)
	err := store.Save(context.Background(), &snapshot.Snapshot{
		ID:        "snap-1",
		Timestamp: time.Now(),
		Metadata:  map[string]string{},
	})
	assert.ErrorIs(t, err, snapshot.ErrNotSealed)
}

func TestSnapshotStore_ListNewestFirstAndPrune(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 3)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := sealedSnapshot(t, fmt.Sprintf("snap-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(ctx, snap))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3, "history cap should prune oldest")
	assert.Equal(t, "snap-4", list[0].ID)

	_, err = store.Get(ctx, "snap-0")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestSnapshotStore_Latest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 10)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, sealedSnapshot(t, "old", base)))
	require.NoError(t, store.Save(ctx, sealedSnapshot(t, "new", base.Add(time.Hour))))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)
}

func TestNewSnapshotStore_NilDB(t *testing.T) {
	_, err := NewSnapshotStore(nil, 10)
	assert.Error(t, err)
}

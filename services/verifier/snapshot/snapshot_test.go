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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(id string) *Snapshot {
	return &Snapshot{
		ID:        id,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		AgentStates: map[string]AgentState{
			"agent-1": {ID: "agent-1", Status: "active", TrustScore: 0.91},
		},
		TaskStates: map[string]TaskState{
			"task-1": {ID: "task-1", AgentID: "agent-1", Status: "running", Progress: 0.5},
		},
		System: SystemState{Version: "1.2.0"},
		FileSystem: FileSystemState{
			Checksums: map[string]string{"a.txt": "abc123"},
		},
		Database: DatabaseState{Connected: true, SchemaVersion: "7"},
		Metadata: map[string]string{"reason": "test"},
	}
}

func TestSnapshot_SealAndVerify(t *testing.T) {
	snap := testSnapshot("snap-1")
	require.NoError(t, snap.Seal())
	require.NotEmpty(t, snap.Checksum)

	assert.NoError(t, snap.VerifyIntegrity())
}

func TestSnapshot_ChecksumDeterministic(t *testing.T) {
	a := testSnapshot("snap-1")
	b := testSnapshot("snap-1")

	sumA, err := a.ComputeChecksum()
	require.NoError(t, err)
	sumB, err := b.ComputeChecksum()
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB, "equal contents must produce equal checksums")
}

func TestSnapshot_TamperDetection(t *testing.T) {
	snap := testSnapshot("snap-1")
	require.NoError(t, snap.Seal())

	// Mutate any field after sealing; the checksum must no longer match.
	snap.System.Version = "9.9.9"

	err := snap.VerifyIntegrity()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, "snap-1", integrityErr.SnapshotID)
}

func TestSnapshot_TamperedChecksumField(t *testing.T) {
	snap := testSnapshot("snap-1")
	require.NoError(t, snap.Seal())

	snap.Checksum = "deadbeef"

	assert.ErrorIs(t, snap.VerifyIntegrity(), ErrChecksumMismatch)
}

func TestSnapshot_VerifyUnsealed(t *testing.T) {
	snap := testSnapshot("snap-1")
	assert.ErrorIs(t, snap.VerifyIntegrity(), ErrNotSealed)
}

func TestSnapshot_ValidateStructure(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		assert.NoError(t, testSnapshot("snap-1").ValidateStructure())
	})

	t.Run("missing id", func(t *testing.T) {
		snap := testSnapshot("")
		assert.ErrorIs(t, snap.ValidateStructure(), ErrIncomplete)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		snap := testSnapshot("snap-1")
		snap.Timestamp = time.Time{}
		assert.ErrorIs(t, snap.ValidateStructure(), ErrIncomplete)
	})

	t.Run("missing metadata", func(t *testing.T) {
		snap := testSnapshot("snap-1")
		snap.Metadata = nil
		assert.ErrorIs(t, snap.ValidateStructure(), ErrIncomplete)
	})
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	snap := testSnapshot("snap-1")
	require.NoError(t, snap.Seal())
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Get(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, got.Checksum)

	// Mutating the returned copy must not affect the stored snapshot.
	got.System.Version = "tampered"
	again, err := store.Get(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", again.System.Version)
}

func TestMemoryStore_RejectsUnsealed(t *testing.T) {
	store := NewMemoryStore(10)
	err := store.Save(context.Background(), testSnapshot("snap-1"))
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore(10)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_HistoryCapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	for i := 0; i < 5; i++ {
		snap := testSnapshot(fmt.Sprintf("snap-%d", i))
		snap.Timestamp = snap.Timestamp.Add(time.Duration(i) * time.Minute)
		require.NoError(t, snap.Seal())
		require.NoError(t, store.Save(ctx, snap))
	}

	_, err := store.Get(ctx, "snap-0")
	assert.ErrorIs(t, err, ErrNotFound, "oldest snapshot should be evicted")
	_, err = store.Get(ctx, "snap-4")
	assert.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "snap-4", list[0].ID, "List is newest first")
}

func TestMemoryStore_Latest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 3; i++ {
		snap := testSnapshot(fmt.Sprintf("snap-%d", i))
		snap.Timestamp = snap.Timestamp.Add(time.Duration(i) * time.Hour)
		require.NoError(t, snap.Seal())
		require.NoError(t, store.Save(ctx, snap))
	}

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-2", latest.ID)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	snap := testSnapshot("snap-1")
	require.NoError(t, snap.Seal())
	require.NoError(t, store.Save(ctx, snap))

	require.NoError(t, store.Delete(ctx, "snap-1"))
	_, err := store.Get(ctx, "snap-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, "unknown"), "deleting unknown id is not an error")
}

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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_PushAndEvict(t *testing.T) {
	ring := NewRingBuffer[int](3)

	for i := 1; i <= 3; i++ {
		_, full := ring.Push(i)
		assert.False(t, full, "no eviction expected while filling")
	}
	require.True(t, ring.IsFull())

	evicted, full := ring.Push(4)
	assert.True(t, full)
	assert.Equal(t, 1, evicted, "oldest element should be evicted first")
	assert.Equal(t, []int{2, 3, 4}, ring.Slice())
}

func TestRingBuffer_ForEachStopsEarly(t *testing.T) {
	ring := NewRingBuffer[int](5)
	for i := 0; i < 5; i++ {
		ring.Push(i)
	}

	var visited []int
	ring.ForEach(func(v int) bool {
		visited = append(visited, v)
		return len(visited) < 2
	})
	assert.Equal(t, []int{0, 1}, visited)
}

func TestRingBuffer_ClampedCapacity(t *testing.T) {
	ring := NewRingBuffer[string](0)
	assert.Equal(t, 1, ring.Cap())
}

func TestBoundedLog_RecentOrdering(t *testing.T) {
	log := NewBoundedLog[int](10, "", "")

	for i := 1; i <= 5; i++ {
		log.Append(i)
	}

	assert.Equal(t, []int{5, 4, 3}, log.Recent(3), "most recent first")
	assert.Equal(t, []int{5, 4, 3, 2, 1}, log.Recent(0), "non-positive limit returns all")
	assert.Equal(t, []int{1, 2, 3, 4, 5}, log.All())
}

func TestBoundedLog_CapEvictsOldest(t *testing.T) {
	log := NewBoundedLog[int](3, "", "")

	for i := 1; i <= 100; i++ {
		log.Append(i)
	}

	assert.Equal(t, 3, log.Len())
	assert.Equal(t, []int{100, 99, 98}, log.Recent(0))
}

func TestBoundedLog_PersistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	log := NewBoundedLog[string](10, dir, "rollbacks")
	log.Append("first")
	log.Append("second")
	require.NoError(t, log.Persist())

	reloaded := NewBoundedLog[string](10, dir, "rollbacks")
	assert.Equal(t, []string{"first", "second"}, reloaded.All())
}

func TestBoundedLog_ConcurrentAppend(t *testing.T) {
	log := NewBoundedLog[int](100, "", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log.Append(n)
			log.Recent(5)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, log.Len())
}

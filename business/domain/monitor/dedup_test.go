package monitor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedup_IsNew(t *testing.T) {
	dedup := NewDedup(10)

	require.True(t, dedup.IsNew("abc"))
	require.False(t, dedup.IsNew("abc"))
	require.False(t, dedup.IsNew("abc"))
	require.True(t, dedup.IsNew("def"))
	require.False(t, dedup.IsNew("def"))
}

func TestDedup_EvictsOldestFirst(t *testing.T) {
	dedup := NewDedup(3)

	require.True(t, dedup.IsNew("h-1"))
	require.True(t, dedup.IsNew("h-2"))
	require.True(t, dedup.IsNew("h-3"))
	assert.Equal(t, 3, dedup.Len())

	// h-4 pushes out h-1, the oldest entry.
	require.True(t, dedup.IsNew("h-4"))
	assert.Equal(t, 3, dedup.Len())
	assert.True(t, dedup.IsNew("h-1"))

	// readmitting h-1 evicted h-2. h-3 and h-4 must still be known.
	assert.False(t, dedup.IsNew("h-3"))
	assert.False(t, dedup.IsNew("h-4"))
	assert.True(t, dedup.IsNew("h-2"))
}

func TestDedup_SizeNeverExceedsCapacity(t *testing.T) {
	dedup := NewDedup(1000)

	for i := 0; i < 2500; i++ {
		require.True(t, dedup.IsNew(fmt.Sprintf("hash-%d", i)))
	}
	assert.Equal(t, 1000, dedup.Len())

	// exactly the most recent 1000 entries survive
	for i := 1500; i < 2500; i++ {
		assert.False(t, dedup.IsNew(fmt.Sprintf("hash-%d", i)), "hash-%d should still be recorded", i)
	}
}

func TestDedup_EvictedEntriesAreExactlyTheOldest(t *testing.T) {
	dedup := NewDedup(5)

	for i := 0; i < 8; i++ {
		dedup.IsNew(fmt.Sprintf("hash-%d", i))
	}

	// hash-0..hash-2 evicted, hash-3..hash-7 retained
	for i := 3; i < 8; i++ {
		assert.False(t, dedup.IsNew(fmt.Sprintf("hash-%d", i)), "hash-%d was evicted but is not among the oldest", i)
	}
	for i := 0; i < 3; i++ {
		assert.True(t, dedup.IsNew(fmt.Sprintf("hash-%d", i)), "hash-%d should have been evicted", i)
	}
}

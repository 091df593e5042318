package diskbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MDEventDB/types"
)

func TestWriteBufferGetPut(t *testing.T) {
	pager := NewInMemoryPager()
	wb := NewWriteBuffer(100, pager, nil)

	require.NoError(t, wb.Put(1, makeBlock(1, 10), true))

	block, ok := wb.Get(1)
	require.True(t, ok)
	assert.Equal(t, 10, block.Len())

	_, ok = wb.Get(2)
	assert.False(t, ok)

	stats := wb.Stats()
	assert.Equal(t, 1, stats.Blocks)
	assert.Equal(t, uint64(10), stats.Events)
	assert.Equal(t, 1, stats.DirtyBlocks)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestWriteBufferReplaceKeepsAccounting(t *testing.T) {
	wb := NewWriteBuffer(100, NewInMemoryPager(), nil)

	require.NoError(t, wb.Put(1, makeBlock(1, 10), false))
	require.NoError(t, wb.Put(1, makeBlock(1, 30), true))

	stats := wb.Stats()
	assert.Equal(t, 1, stats.Blocks)
	assert.Equal(t, uint64(30), stats.Events)
	assert.Equal(t, 1, stats.DirtyBlocks)
}

func TestWriteBufferFillKeepsBufferedVersion(t *testing.T) {
	wb := NewWriteBuffer(100, NewInMemoryPager(), nil)

	require.NoError(t, wb.Put(1, makeBlock(1, 20), true))

	block, inserted, err := wb.Fill(1, makeBlock(1, 5))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 20, block.Len())

	stats := wb.Stats()
	assert.Equal(t, uint64(20), stats.Events)
	assert.Equal(t, 1, stats.DirtyBlocks)

	block, inserted, err = wb.Fill(2, makeBlock(2, 5))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 5, block.Len())

	stats = wb.Stats()
	assert.Equal(t, 2, stats.Blocks)
	assert.Equal(t, uint64(25), stats.Events)
	assert.Equal(t, 1, stats.DirtyBlocks)
}

func TestWriteBufferEvictsLeastRecentlyUsed(t *testing.T) {
	pager := NewInMemoryPager()
	wb := NewWriteBuffer(25, pager, nil)

	var evicted []uint64
	wb.OnEvict(func(boxID uint64, _ types.EventBlock) {
		evicted = append(evicted, boxID)
	})

	require.NoError(t, wb.Put(1, makeBlock(1, 10), true))
	require.NoError(t, wb.Put(2, makeBlock(2, 10), true))

	// touch 1 so that 2 becomes the eviction candidate
	_, ok := wb.Get(1)
	require.True(t, ok)

	require.NoError(t, wb.Put(3, makeBlock(3, 10), true))

	assert.Equal(t, []uint64{2}, evicted)
	assert.True(t, wb.Contains(1))
	assert.False(t, wb.Contains(2))
	assert.True(t, wb.Contains(3))

	// the dirty block was written before it left
	data, err := pager.ReadBlock(2)
	require.NoError(t, err)
	block, err := types.DecodeEventBlock(data)
	require.NoError(t, err)
	assert.Equal(t, 10, block.Len())
	assert.Equal(t, float32(2), block.Events[0].Center[0])
}

func TestWriteBufferCleanEvictionSkipsPager(t *testing.T) {
	pager := NewInMemoryPager()
	wb := NewWriteBuffer(10, pager, nil)

	require.NoError(t, wb.Put(1, makeBlock(1, 10), false))
	require.NoError(t, wb.Put(2, makeBlock(2, 10), false))

	assert.False(t, wb.Contains(1))
	assert.Equal(t, 0, pager.NumBlocks())
	assert.Equal(t, uint64(1), wb.Stats().Evictions)
}

func TestWriteBufferPinnedBlocksStay(t *testing.T) {
	wb := NewWriteBuffer(15, NewInMemoryPager(), nil)

	require.NoError(t, wb.Put(1, makeBlock(1, 10), true))
	require.NoError(t, wb.Pin(1))

	// the pinned block is skipped, so the newer block is the one paged out
	require.NoError(t, wb.Put(2, makeBlock(2, 10), true))
	assert.True(t, wb.Contains(1), "pinned block must not be evicted")
	assert.False(t, wb.Contains(2))

	require.NoError(t, wb.Unpin(1))
	assert.True(t, wb.Contains(1))

	require.NoError(t, wb.Put(3, makeBlock(3, 10), true))
	assert.False(t, wb.Contains(1))
	assert.True(t, wb.Contains(3))
	assert.LessOrEqual(t, wb.Stats().Events, wb.Capacity())
}

func TestWriteBufferPinnedBlocksMayExceedCapacity(t *testing.T) {
	wb := NewWriteBuffer(15, NewInMemoryPager(), nil)

	require.NoError(t, wb.Put(1, makeBlock(1, 10), true))
	require.NoError(t, wb.Pin(1))
	require.NoError(t, wb.Put(1, makeBlock(1, 20), true))

	assert.True(t, wb.Contains(1))
	assert.Equal(t, uint64(20), wb.Stats().Events)
	assert.Equal(t, 1, wb.Stats().Pinned)
}

func TestWriteBufferPinUnknownBlock(t *testing.T) {
	wb := NewWriteBuffer(15, NewInMemoryPager(), nil)
	assert.Error(t, wb.Pin(7))
	assert.Error(t, wb.Unpin(7))
	assert.Error(t, wb.MarkDirty(7))
}

func TestWriteBufferFlush(t *testing.T) {
	pager := NewInMemoryPager()
	wb := NewWriteBuffer(1000, pager, nil)

	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, wb.Put(id, makeBlock(id, int(id)), true))
	}
	require.NoError(t, wb.Put(6, makeBlock(6, 3), false))

	require.NoError(t, wb.Flush())

	assert.Equal(t, 5, pager.NumBlocks())
	assert.Equal(t, 0, wb.Stats().DirtyBlocks)
	assert.Equal(t, 6, wb.Stats().Blocks)

	require.NoError(t, wb.MarkDirty(6))
	require.NoError(t, wb.Flush())
	assert.Equal(t, 6, pager.NumBlocks())
}

func TestWriteBufferRemove(t *testing.T) {
	wb := NewWriteBuffer(100, NewInMemoryPager(), nil)
	require.NoError(t, wb.Put(1, makeBlock(1, 10), true))
	require.NoError(t, wb.Pin(1))

	wb.Remove(1)
	assert.False(t, wb.Contains(1))
	assert.Equal(t, uint64(0), wb.Stats().Events)
}

func TestWriteBufferEvictionWithoutPager(t *testing.T) {
	wb := NewWriteBuffer(5, nil, nil)
	err := wb.Put(1, makeBlock(1, 10), true)
	assert.Error(t, err)
}

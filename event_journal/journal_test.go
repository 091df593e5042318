package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MDEventDB/types"
)

func testBlock(first float32, n int) types.EventBlock {
	events := make([]types.MDEvent, n)
	for i := range events {
		events[i] = types.NewMDEvent(first+float32(i), 0.5)
	}
	return types.NewEventBlock(2, events)
}

func collect(t *testing.T, j *Journal, from uint64) ([]uint64, []types.EventBlock) {
	t.Helper()
	var lsns []uint64
	var blocks []types.EventBlock
	require.NoError(t, j.Replay(from, func(lsn uint64, block types.EventBlock) error {
		lsns = append(lsns, lsn)
		blocks = append(blocks, block)
		return nil
	}))
	return lsns, blocks
}

func TestAppendAndReplay(t *testing.T) {
	j, err := Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		lsn, err := j.Append(testBlock(float32(i*10), i+1))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), lsn)
	}
	require.NoError(t, j.Sync())

	lsns, blocks := collect(t, j, 0)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, lsns)
	require.Len(t, blocks, 5)
	assert.Equal(t, 3, blocks[2].Len())
	assert.Equal(t, float32(20), blocks[2].Events[0].Center[0])

	lsns, _ = collect(t, j, 4)
	assert.Equal(t, []uint64{4, 5}, lsns)
}

func TestReopenRestoresLSN(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir, 0, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(testBlock(0, 2))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	j, err = Open(dir, 0, nil)
	require.NoError(t, err)
	defer j.Close()

	assert.Equal(t, uint64(3), j.LastLSN())
	lsn, err := j.Append(testBlock(0, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), lsn)

	lsns, _ := collect(t, j, 0)
	assert.Equal(t, []uint64{1, 2, 3, 4}, lsns)
}

func TestSegmentRollover(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 256, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := j.Append(testBlock(float32(i), 4))
		require.NoError(t, err)
	}
	assert.Greater(t, j.NumSegments(), 1)
	require.NoError(t, j.Close())

	j, err = Open(dir, 256, nil)
	require.NoError(t, err)
	defer j.Close()

	lsns, blocks := collect(t, j, 0)
	require.Len(t, lsns, 20)
	for i, lsn := range lsns {
		assert.Equal(t, uint64(i+1), lsn)
		assert.Equal(t, float32(i), blocks[i].Events[0].Center[0])
	}
}

func TestTornTailIsDropped(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 0, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(testBlock(float32(i), 2))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	// cut the last record in half
	path := filepath.Join(dir, "journal_0000000000000000.log")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-10))

	j, err = Open(dir, 0, nil)
	require.NoError(t, err)
	defer j.Close()

	assert.Equal(t, uint64(2), j.LastLSN())
	lsn, err := j.Append(testBlock(9, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn)

	lsns, blocks := collect(t, j, 0)
	assert.Equal(t, []uint64{1, 2, 3}, lsns)
	assert.Equal(t, float32(9), blocks[2].Events[0].Center[0])
}

func TestCorruptRecordFailsReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 0, nil)
	require.NoError(t, err)
	_, err = j.Append(testBlock(1, 2))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	path := filepath.Join(dir, "journal_0000000000000000.log")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[RecordHeaderSize+20] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = Open(dir, 0, nil)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestTruncateKeepsLSNMonotonic(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 0, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := j.Append(testBlock(0, 1))
		require.NoError(t, err)
	}
	require.NoError(t, j.Truncate())

	lsns, _ := collect(t, j, 0)
	assert.Empty(t, lsns)
	assert.Equal(t, 1, j.NumSegments())

	lsn, err := j.Append(testBlock(0, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), lsn)
	require.NoError(t, j.Truncate())
	require.NoError(t, j.Close())

	// an empty journal forgets its counter; the owner restores it
	j, err = Open(dir, 0, nil)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, uint64(0), j.LastLSN())
	j.EnsureLSN(5)
	j.EnsureLSN(2)
	lsn, err = j.Append(testBlock(0, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), lsn)
}

func TestFailedTruncateKeepsJournalWritable(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 0, nil)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 2; i++ {
		_, err := j.Append(testBlock(float32(i), 1))
		require.NoError(t, err)
	}

	// a non-empty directory where the segment file was cannot be removed
	files, err := filepath.Glob(filepath.Join(dir, "journal_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NoError(t, os.Remove(files[0]))
	require.NoError(t, os.Mkdir(files[0], 0755))
	require.NoError(t, os.WriteFile(filepath.Join(files[0], "keep"), []byte("x"), 0644))

	assert.Error(t, j.Truncate())

	lsn, err := j.Append(testBlock(5, 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn)
	require.NoError(t, j.Sync())
	assert.Equal(t, 1, j.NumSegments())

	lsns, _ := collect(t, j, 0)
	assert.Equal(t, []uint64{3}, lsns)
}

func TestClosedJournal(t *testing.T) {
	j, err := Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err = j.Append(testBlock(0, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.Sync(), ErrClosed)
	assert.ErrorIs(t, j.Replay(0, nil), ErrClosed)
	assert.ErrorIs(t, j.Truncate(), ErrClosed)
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBlockCodec(t *testing.T) {
	block := NewEventBlock(3, []MDEvent{
		{Signal: 1.5, ErrorSquared: 2.25, RunIndex: 7, DetectorID: 4012, Center: []float32{0.5, -1, 3}},
		{Signal: 1, ErrorSquared: 1, RunIndex: 0, DetectorID: 1, Center: []float32{9, 8, 7}},
	})

	encoded, err := EncodeEventBlock(block)
	require.NoError(t, err)
	assert.Len(t, encoded, EncodedSize(block))

	decoded, err := DecodeEventBlock(encoded)
	require.NoError(t, err)
	assert.Equal(t, block, decoded)
}

func TestEventBlockCodecEmpty(t *testing.T) {
	encoded, err := EncodeEventBlock(NewEventBlock(2, nil))
	require.NoError(t, err)
	assert.Len(t, encoded, BlockHeaderSize)

	decoded, err := DecodeEventBlock(encoded)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.NumDims)
	assert.Empty(t, decoded.Events)
}

func TestEventBlockCodecRejectsDimensionMismatch(t *testing.T) {
	_, err := EncodeEventBlock(NewEventBlock(2, []MDEvent{NewMDEvent(1, 2, 3)}))
	assert.Error(t, err)
}

func TestEventBlockCodecDetectsCorruption(t *testing.T) {
	encoded, err := EncodeEventBlock(NewEventBlock(1, []MDEvent{NewMDEvent(4)}))
	require.NoError(t, err)

	encoded[len(encoded)-1] ^= 0xff
	_, err = DecodeEventBlock(encoded)
	assert.ErrorIs(t, err, ErrCorruptBlock)

	_, err = DecodeEventBlock(encoded[:BlockHeaderSize-1])
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestExtentSplit(t *testing.T) {
	ext := Extent{Min: -1, Max: 1}
	left := ext.Split(2, 0)
	right := ext.Split(2, 1)

	assert.Equal(t, Extent{Min: -1, Max: 0}, left)
	assert.Equal(t, Extent{Min: 0, Max: 1}, right)
	assert.True(t, left.Contains(-1))
	assert.False(t, left.Contains(0))
	assert.True(t, ContainsPoint([]Extent{left, right}, []float32{-0.5, 0.5}))
	assert.InDelta(t, 1.0, Volume([]Extent{left, right}), 1e-12)
}

package boxcontroller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWillSplitThreshold(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetSplitThreshold(100))
	require.NoError(t, bc.SetMaxDepth(4))

	for depth := 0; depth < bc.MaxDepth(); depth++ {
		for n := uint64(0); n <= 100; n++ {
			assert.False(t, bc.WillSplit(n, depth), "n=%d depth=%d", n, depth)
		}
		for _, n := range []uint64{101, 102, 1000, 1 << 40} {
			assert.True(t, bc.WillSplit(n, depth), "n=%d depth=%d", n, depth)
		}
	}
}

func TestWillSplitNeverAtMaxDepth(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetSplitThreshold(0))

	for _, n := range []uint64{0, 1, 1024, 1 << 62} {
		assert.False(t, bc.WillSplit(n, bc.MaxDepth()))
		assert.False(t, bc.WillSplit(n, bc.MaxDepth()+1))
	}
}

func TestShouldSplitBoxesZeroBoxes(t *testing.T) {
	bc := New(1)
	require.NoError(t, bc.SetSplitThreshold(0))
	require.NoError(t, bc.SetSignificantEventsNumber(0))

	for _, c := range [][2]uint64{{0, 0}, {1 << 40, 1 << 40}, {0, 5}, {5, 0}} {
		assert.False(t, bc.ShouldSplitBoxes(c[0], c[1], 0))
	}
}

func TestShouldSplitBoxes(t *testing.T) {
	bc := New(3)
	require.NoError(t, bc.SetSplitThreshold(1000))
	require.NoError(t, bc.SetSignificantEventsNumber(10_000))

	tests := []struct {
		name           string
		eventsInOutput uint64
		eventsAdded    uint64
		numBoxes       uint64
		want           bool
	}{
		{"small tree below significant count", 0, 5_000, 100, false},
		{"small tree above significant count", 0, 10_001, 100, true},
		{"significant count is inclusive", 0, 10_000, 100, false},
		{"large tree compares to a sixteenth", 1_600_000, 99_000, 1000, false},
		{"large tree above a sixteenth", 1_600_000, 100_001, 1000, true},
		{"average occupancy above threshold", 0, 5_000, 4, true},
		{"average occupancy at threshold", 0, 4_000, 4, false},
		{"fractional average rounds down", 0, 4_003, 4, false},
		{"average one past threshold", 0, 4_004, 4, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, bc.ShouldSplitBoxes(tc.eventsInOutput, tc.eventsAdded, tc.numBoxes))
		})
	}
}

func TestShouldSplitBoxesDefaultThresholdBoundary(t *testing.T) {
	bc := New(3)
	// 2049 / 2 is 1024, not above the default threshold
	assert.False(t, bc.ShouldSplitBoxes(0, 2049, 2))
	assert.True(t, bc.ShouldSplitBoxes(0, 2050, 2))
}

func TestAddingEventsParameters(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetAddingEventsParameters(500, 8))

	perTask, perBlock := bc.AddingEventsParameters()
	assert.Equal(t, uint64(500), perTask)
	assert.Equal(t, uint64(8), perBlock)

	assert.ErrorIs(t, bc.SetAddingEventsParameters(0, 8), ErrInvalidArgument)
	assert.ErrorIs(t, bc.SetAddingEventsParameters(8, 0), ErrInvalidArgument)
	perTask, perBlock = bc.AddingEventsParameters()
	assert.Equal(t, uint64(500), perTask)
	assert.Equal(t, uint64(8), perBlock)
}

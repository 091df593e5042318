package boxcontroller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScenarioController is 3 dimensions, threshold 100, 2x2x2 split, max depth 3.
func newScenarioController(t *testing.T) *BoxController {
	t.Helper()
	bc := New(3)
	require.NoError(t, bc.SetSplitThreshold(100))
	require.NoError(t, bc.SetSplitInto(2))
	require.NoError(t, bc.SetMaxDepth(3))
	return bc
}

func TestTrackNumBoxesSingleSplit(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetSplitIntoDim(0, 3))
	require.NoError(t, bc.SetSplitIntoDim(1, 5))
	bc.ResetNumBoxes()
	require.Equal(t, uint64(1), bc.NumMDBoxes()[0])

	bc.TrackNumBoxes(0)

	boxes := bc.NumMDBoxes()
	assert.Equal(t, uint64(0), boxes[0])
	assert.Equal(t, bc.NumSplit(), boxes[1])
	assert.Equal(t, uint64(15), boxes[1])
	assert.Equal(t, uint64(1), bc.NumMDGridBoxes()[0])
}

func TestSplitScenario(t *testing.T) {
	bc := newScenarioController(t)
	require.Equal(t, uint64(8), bc.NumSplit())

	require.True(t, bc.WillSplit(150, 0))
	bc.TrackNumBoxes(0)

	assert.Equal(t, []uint64{0, 8, 0, 0}, bc.NumMDBoxes())
	assert.Equal(t, []uint64{1, 0, 0, 0}, bc.NumMDGridBoxes())
	assert.Equal(t, uint64(8), bc.TotalNumMDBoxes())
	assert.Equal(t, uint64(1), bc.TotalNumMDGridBoxes())
	assert.InDelta(t, 1.0, bc.AverageDepth(), 1e-12)
}

func TestAverageDepthScenario(t *testing.T) {
	bc := newScenarioController(t)
	bc.TrackNumBoxes(0)
	for i := 0; i < 8; i++ {
		bc.TrackNumBoxes(1)
	}

	assert.Equal(t, []uint64{0, 0, 64, 0}, bc.NumMDBoxes())
	assert.Equal(t, []uint64{1, 8, 0, 0}, bc.NumMDGridBoxes())
	assert.Equal(t, []float64{1, 8, 64, 512}, bc.MaxNumMDBoxes())
	assert.InDelta(t, 2.0, bc.AverageDepth(), 1e-12)
}

func TestAverageDepthMixedLeaves(t *testing.T) {
	bc := newScenarioController(t)
	bc.TrackNumBoxes(0)
	bc.TrackNumBoxes(1)

	// 7 leaves at depth 1 cover 7/8 of the volume, 8 leaves at depth 2 cover 1/8
	assert.Equal(t, []uint64{0, 7, 8, 0}, bc.NumMDBoxes())
	assert.InDelta(t, 7.0/8.0*1+1.0/8.0*2, bc.AverageDepth(), 1e-12)
}

func TestTrackNumBoxesWithTopSplit(t *testing.T) {
	bc := newScenarioController(t)
	require.NoError(t, bc.SetSplitTopInto(0, 10))
	require.NoError(t, bc.SetSplitTopInto(1, 10))

	assert.Equal(t, []float64{1, 100, 800, 6400}, bc.MaxNumMDBoxes())

	bc.TrackNumBoxes(0)
	bc.TrackNumBoxes(1)
	assert.Equal(t, []uint64{0, 99, 8, 0}, bc.NumMDBoxes())
}

func TestTrackNumBoxesNeverUnderflows(t *testing.T) {
	bc := newScenarioController(t)
	bc.ClearBoxesCounter(0)

	bc.TrackNumBoxes(0)
	assert.Equal(t, []uint64{0, 8, 0, 0}, bc.NumMDBoxes())
}

func TestCounters(t *testing.T) {
	bc := newScenarioController(t)

	bc.IncBoxesCounter(2, 5)
	bc.IncBoxesCounter(2, 1)
	bc.IncGridBoxesCounter(1, 3)
	assert.Equal(t, []uint64{1, 0, 6, 0}, bc.NumMDBoxes())
	assert.Equal(t, []uint64{0, 3, 0, 0}, bc.NumMDGridBoxes())

	bc.ClearBoxesCounter(2)
	bc.ClearGridBoxesCounter(1)
	assert.Equal(t, []uint64{1, 0, 0, 0}, bc.NumMDBoxes())
	assert.Equal(t, []uint64{0, 0, 0, 0}, bc.NumMDGridBoxes())

	bc.ResetNumBoxes()
	assert.Equal(t, []uint64{1, 0, 0, 0}, bc.NumMDBoxes())
}

func TestStatisticsDepthOutOfRangePanics(t *testing.T) {
	bc := newScenarioController(t)

	assert.Panics(t, func() { bc.IncBoxesCounter(4, 1) })
	assert.Panics(t, func() { bc.IncGridBoxesCounter(-1, 1) })
	assert.Panics(t, func() { bc.ClearBoxesCounter(4) })
	assert.Panics(t, func() { bc.ClearGridBoxesCounter(4) })
	assert.Panics(t, func() { bc.TrackNumBoxes(3) }, "a box at max depth cannot split")

	assert.Equal(t, []uint64{1, 0, 0, 0}, bc.NumMDBoxes())
}

func TestStatisticsSnapshot(t *testing.T) {
	bc := newScenarioController(t)
	bc.ClaimIDRange(9)
	bc.TrackNumBoxes(0)
	bc.AddNumEventsAtMax(12)

	stats := bc.Statistics()
	assert.Equal(t, []uint64{0, 8, 0, 0}, stats.NumMDBoxes)
	assert.Equal(t, []uint64{1, 0, 0, 0}, stats.NumMDGridBoxes)
	assert.Equal(t, uint64(8), stats.TotalNumMDBoxes)
	assert.Equal(t, uint64(1), stats.TotalNumMDGridBoxes)
	assert.Equal(t, uint64(9), stats.MaxID)
	assert.Equal(t, uint64(12), stats.NumEventsAtMax)
	assert.InDelta(t, 1.0, stats.AverageDepth, 1e-12)

	stats.NumMDBoxes[1] = 100
	assert.Equal(t, uint64(8), bc.NumMDBoxes()[1], "snapshots must not alias controller state")
}

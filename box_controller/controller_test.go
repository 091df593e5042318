package boxcontroller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	bc := New(3)

	assert.Equal(t, 3, bc.NumDims())
	assert.Equal(t, DefaultMaxDepth, bc.MaxDepth())
	assert.Equal(t, uint64(DefaultSplitThreshold), bc.SplitThreshold())
	assert.Equal(t, []int{1, 1, 1}, bc.SplitIntoAll())
	assert.Equal(t, uint64(1), bc.NumSplit())
	assert.Equal(t, []uint64{1, 0, 0, 0, 0, 0}, bc.NumMDBoxes())
	assert.Equal(t, []uint64{0, 0, 0, 0, 0, 0}, bc.NumMDGridBoxes())
	assert.False(t, bc.IsFileBacked())
	assert.False(t, bc.IsSealed())

	_, ok := bc.SplitTopInto()
	assert.False(t, ok)

	perTask, perBlock := bc.AddingEventsParameters()
	assert.Equal(t, uint64(DefaultAddingEventsPerTask), perTask)
	assert.Positive(t, perBlock)
}

func TestNewPanicsWithoutDimensions(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

func TestSetSplitInto(t *testing.T) {
	bc := New(3)

	require.NoError(t, bc.SetSplitInto(4))
	assert.Equal(t, []int{4, 4, 4}, bc.SplitIntoAll())
	assert.Equal(t, uint64(64), bc.NumSplit())

	require.NoError(t, bc.SetSplitIntoDim(1, 2))
	assert.Equal(t, 2, bc.SplitInto(1))
	assert.Equal(t, uint64(32), bc.NumSplit())
	assert.Equal(t, []float64{1, 32, 1024}, bc.MaxNumMDBoxes()[:3])
}

func TestSetSplitIntoRejectsBadArguments(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetSplitInto(3))

	assert.ErrorIs(t, bc.SetSplitIntoDim(2, 5), ErrInvalidDimension)
	assert.ErrorIs(t, bc.SetSplitIntoDim(-1, 5), ErrInvalidDimension)
	assert.ErrorIs(t, bc.SetSplitIntoDim(0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, bc.SetSplitInto(0), ErrInvalidArgument)

	assert.Equal(t, []int{3, 3}, bc.SplitIntoAll())
	assert.Equal(t, uint64(9), bc.NumSplit())
}

func TestSetSplitTopInto(t *testing.T) {
	bc := New(3)
	require.NoError(t, bc.SetSplitInto(2))

	assert.ErrorIs(t, bc.SetSplitTopInto(3, 4), ErrInvalidDimension)
	_, ok := bc.SplitTopInto()
	assert.False(t, ok, "a rejected call must not allocate the override")

	require.NoError(t, bc.SetSplitTopInto(0, 4))
	top, ok := bc.SplitTopInto()
	require.True(t, ok)
	assert.Equal(t, []int{4, 1, 1}, top)
	assert.Equal(t, uint64(4), bc.NumTopSplit())
	assert.Equal(t, []int{4, 1, 1}, bc.SplitIntoForDepth(0))
	assert.Equal(t, []int{2, 2, 2}, bc.SplitIntoForDepth(1))

	require.NoError(t, bc.SetSplitTopInto(2, 3))
	assert.Equal(t, uint64(12), bc.NumTopSplit())
	assert.Equal(t, []float64{1, 12, 96}, bc.MaxNumMDBoxes()[:3])

	require.NoError(t, bc.ClearSplitTopInto())
	_, ok = bc.SplitTopInto()
	assert.False(t, ok)
	assert.Equal(t, uint64(8), bc.NumTopSplit())
}

func TestSetMaxDepthResetsStatistics(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetSplitInto(2))
	bc.TrackNumBoxes(0)
	require.Equal(t, []uint64{0, 4, 0, 0, 0, 0}, bc.NumMDBoxes())

	require.NoError(t, bc.SetMaxDepth(2))
	assert.Equal(t, []uint64{1, 0, 0}, bc.NumMDBoxes())
	assert.Equal(t, []uint64{0, 0, 0}, bc.NumMDGridBoxes())
	assert.Len(t, bc.MaxNumMDBoxes(), 3)

	assert.ErrorIs(t, bc.SetMaxDepth(-1), ErrInvalidArgument)
	assert.ErrorIs(t, bc.SetMaxDepth(MaxSupportedDepth+1), ErrInvalidArgument)
	assert.Equal(t, 2, bc.MaxDepth())
}

func TestSealRejectsConfiguration(t *testing.T) {
	bc := New(2)
	require.NoError(t, bc.SetSplitInto(2))
	bc.Seal()
	assert.True(t, bc.IsSealed())

	assert.ErrorIs(t, bc.SetSplitInto(3), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.SetSplitIntoDim(0, 3), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.SetSplitTopInto(0, 3), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.ClearSplitTopInto(), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.SetMaxDepth(3), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.SetSplitThreshold(10), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.SetSignificantEventsNumber(10), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.SetAddingEventsParameters(10, 10), ErrConfigurationSealed)
	assert.ErrorIs(t, bc.FromSerializedForm(New(2).ToSerializedForm()), ErrConfigurationSealed)

	assert.Equal(t, []int{2, 2}, bc.SplitIntoAll())
	assert.Equal(t, DefaultMaxDepth, bc.MaxDepth())

	// statistics and ids keep working in the operating phase
	bc.TrackNumBoxes(0)
	assert.Equal(t, uint64(4), bc.TotalNumMDBoxes())
	assert.Equal(t, uint64(0), bc.GetNextID())
}

func TestEqualsComparesConfigurationOnly(t *testing.T) {
	a := New(3)
	b := New(3)
	require.NoError(t, a.SetSplitInto(2))
	require.NoError(t, b.SetSplitInto(2))
	assert.True(t, a.Equals(b))

	a.TrackNumBoxes(0)
	a.ClaimIDRange(100)
	a.AddNumEventsAtMax(5)
	require.NoError(t, a.SetAddingEventsParameters(7, 3))
	assert.True(t, a.Equals(b), "history and tuning knobs do not affect equality")

	require.NoError(t, b.SetSplitThreshold(10))
	assert.False(t, a.Equals(b))
	require.NoError(t, b.SetSplitThreshold(DefaultSplitThreshold))

	require.NoError(t, b.SetSplitTopInto(0, 1))
	assert.False(t, a.Equals(b), "an all-ones override still differs from no override")
	require.NoError(t, b.ClearSplitTopInto())

	require.NoError(t, b.SetMaxDepth(4))
	assert.False(t, a.Equals(b))

	assert.False(t, a.Equals(New(2)))
	assert.False(t, a.Equals(nil))
	var none *BoxController
	assert.True(t, none.Equals(nil))
}

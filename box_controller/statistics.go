package boxcontroller

import "fmt"

/*
Per-depth box bookkeeping.

numMDBoxes[d]     leaf boxes currently at depth d
numMDGridBoxes[d] grid boxes created from depth-d leaves
maxNumMDBoxes[d]  number of boxes at depth d if every box above it had split

All three slices have maxDepth+1 entries and share statsMu. Depth arguments
come from the tree, which never exceeds maxDepth, so an invalid depth is a
bug and panics.
*/

// Statistics is a consistent snapshot of the box bookkeeping.
type Statistics struct {
	NumMDBoxes          []uint64
	NumMDGridBoxes      []uint64
	MaxNumMDBoxes       []float64
	TotalNumMDBoxes     uint64
	TotalNumMDGridBoxes uint64
	AverageDepth        float64
	MaxID               uint64
	NumEventsAtMax      uint64
}

func (bc *BoxController) checkDepth(depth int) {
	if depth < 0 || depth > bc.maxDepth {
		panic(fmt.Sprintf("boxcontroller: depth %d outside [0, %d]", depth, bc.maxDepth))
	}
}

// ResetNumBoxes sizes the counters for the current max depth, zeroes them and
// counts the single root leaf. It also recomputes the per-depth ceiling.
func (bc *BoxController) ResetNumBoxes() {
	bc.statsMu.Lock()
	bc.numMDBoxes = make([]uint64, bc.maxDepth+1)
	bc.numMDGridBoxes = make([]uint64, bc.maxDepth+1)
	bc.numMDBoxes[0] = 1
	bc.resetMaxNumBoxesLocked()
	bc.statsMu.Unlock()
}

// ResetMaxNumBoxes recomputes the theoretical number of boxes per depth.
func (bc *BoxController) ResetMaxNumBoxes() {
	bc.statsMu.Lock()
	bc.resetMaxNumBoxesLocked()
	bc.statsMu.Unlock()
}

func (bc *BoxController) resetMaxNumBoxesLocked() {
	bc.maxNumMDBoxes = make([]float64, bc.maxDepth+1)
	bc.maxNumMDBoxes[0] = 1
	for depth := 1; depth <= bc.maxDepth; depth++ {
		factor := bc.numSplit
		if depth == 1 && bc.splitTopInto != nil {
			factor = bc.numTopSplit
		}
		bc.maxNumMDBoxes[depth] = bc.maxNumMDBoxes[depth-1] * float64(factor)
	}
}

func (bc *BoxController) ClearBoxesCounter(depth int) {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	bc.checkDepth(depth)
	bc.numMDBoxes[depth] = 0
}

func (bc *BoxController) ClearGridBoxesCounter(depth int) {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	bc.checkDepth(depth)
	bc.numMDGridBoxes[depth] = 0
}

func (bc *BoxController) IncBoxesCounter(depth int, inc uint64) {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	bc.checkDepth(depth)
	bc.numMDBoxes[depth] += inc
}

func (bc *BoxController) IncGridBoxesCounter(depth int, inc uint64) {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	bc.checkDepth(depth)
	bc.numMDGridBoxes[depth] += inc
}

// TrackNumBoxes records that one leaf at depth has been split into a grid box:
// the leaf count at depth drops by one, the grid count at depth grows by one
// and the leaf count at depth+1 grows by the branching factor.
func (bc *BoxController) TrackNumBoxes(depth int) {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	bc.checkDepth(depth)
	bc.checkDepth(depth + 1)

	if bc.numMDBoxes[depth] > 0 {
		bc.numMDBoxes[depth]--
	}
	bc.numMDGridBoxes[depth]++
	if depth == 0 && bc.splitTopInto != nil {
		bc.numMDBoxes[depth+1] += bc.numTopSplit
	} else {
		bc.numMDBoxes[depth+1] += bc.numSplit
	}
}

// NumMDBoxes returns a copy of the per-depth leaf counts.
func (bc *BoxController) NumMDBoxes() []uint64 {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return append([]uint64(nil), bc.numMDBoxes...)
}

// NumMDGridBoxes returns a copy of the per-depth grid box counts.
func (bc *BoxController) NumMDGridBoxes() []uint64 {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return append([]uint64(nil), bc.numMDGridBoxes...)
}

// MaxNumMDBoxes returns a copy of the per-depth ceiling.
func (bc *BoxController) MaxNumMDBoxes() []float64 {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return append([]float64(nil), bc.maxNumMDBoxes...)
}

func (bc *BoxController) TotalNumMDBoxes() uint64 {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return sum(bc.numMDBoxes)
}

func (bc *BoxController) TotalNumMDGridBoxes() uint64 {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return sum(bc.numMDGridBoxes)
}

// AverageDepth is the mean leaf depth, each leaf weighted by its volume
// relative to the finest possible box. It is a diagnostic: for large
// numSplit^maxDepth the ceiling overflows float64 precision.
func (bc *BoxController) AverageDepth() float64 {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return bc.averageDepthLocked()
}

func (bc *BoxController) averageDepthLocked() float64 {
	finest := bc.maxNumMDBoxes[len(bc.maxNumMDBoxes)-1]
	total := 0.0
	for depth, n := range bc.numMDBoxes {
		total += float64(depth) * float64(n) * (finest / bc.maxNumMDBoxes[depth])
	}
	return total / finest
}

// NumEventsAtMax counts events that would have split a box already at max depth.
func (bc *BoxController) NumEventsAtMax() uint64 {
	return bc.numEventsAtMax.Load()
}

func (bc *BoxController) AddNumEventsAtMax(n uint64) {
	bc.numEventsAtMax.Add(n)
}

// Statistics takes a snapshot of all counters under one statistics lock.
func (bc *BoxController) Statistics() Statistics {
	maxID := bc.MaxID()

	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()
	return Statistics{
		NumMDBoxes:          append([]uint64(nil), bc.numMDBoxes...),
		NumMDGridBoxes:      append([]uint64(nil), bc.numMDGridBoxes...),
		MaxNumMDBoxes:       append([]float64(nil), bc.maxNumMDBoxes...),
		TotalNumMDBoxes:     sum(bc.numMDBoxes),
		TotalNumMDGridBoxes: sum(bc.numMDGridBoxes),
		AverageDepth:        bc.averageDepthLocked(),
		MaxID:               maxID,
		NumEventsAtMax:      bc.numEventsAtMax.Load(),
	}
}

func sum(v []uint64) uint64 {
	var total uint64
	for _, n := range v {
		total += n
	}
	return total
}

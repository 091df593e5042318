package boxcontroller

import (
	"fmt"
	"math/bits"
)

/*
Configuration setters. All of them are rejected with ErrConfigurationSealed once
the controller is sealed, and none of them mutates anything when it fails.
*/

func (bc *BoxController) SplitThreshold() uint64 {
	return bc.splitThreshold
}

func (bc *BoxController) SetSplitThreshold(threshold uint64) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	bc.splitThreshold = threshold
	return nil
}

func (bc *BoxController) MaxDepth() int {
	return bc.maxDepth
}

// SetMaxDepth changes the recursion ceiling and resets every box statistic,
// discarding live counts. Use it only while configuring a fresh controller.
func (bc *BoxController) SetMaxDepth(depth int) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	if depth < 0 || depth > MaxSupportedDepth {
		return fmt.Errorf("%w: max depth %d outside [0, %d]", ErrInvalidArgument, depth, MaxSupportedDepth)
	}
	bc.maxDepth = depth
	bc.ResetNumBoxes()
	return nil
}

// SplitInto returns the fan-out along dim. It panics if dim is out of range.
func (bc *BoxController) SplitInto(dim int) int {
	return bc.splitInto[dim]
}

// SplitIntoAll returns a copy of the per-dimension fan-out.
func (bc *BoxController) SplitIntoAll() []int {
	return append([]int(nil), bc.splitInto...)
}

// SplitTopInto returns a copy of the root fan-out override and whether one is set.
func (bc *BoxController) SplitTopInto() ([]int, bool) {
	if bc.splitTopInto == nil {
		return nil, false
	}
	return append([]int(nil), bc.splitTopInto...), true
}

// SplitIntoForDepth is the fan-out used when a box at depth splits.
func (bc *BoxController) SplitIntoForDepth(depth int) []int {
	if depth == 0 && bc.splitTopInto != nil {
		return append([]int(nil), bc.splitTopInto...)
	}
	return bc.SplitIntoAll()
}

// NumSplit is the number of children produced by splitting a non-root box.
func (bc *BoxController) NumSplit() uint64 {
	return bc.numSplit
}

// NumTopSplit is the number of children produced by splitting the root when
// a root override is set, and equals NumSplit otherwise.
func (bc *BoxController) NumTopSplit() uint64 {
	if bc.splitTopInto == nil {
		return bc.numSplit
	}
	return bc.numTopSplit
}

// SetSplitInto sets the same fan-out along every dimension.
func (bc *BoxController) SetSplitInto(num int) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	if num < 1 {
		return fmt.Errorf("%w: split into %d", ErrInvalidArgument, num)
	}
	for d := range bc.splitInto {
		bc.splitInto[d] = num
	}
	bc.calcNumSplit()
	return nil
}

// SetSplitIntoDim sets the fan-out along a single dimension.
func (bc *BoxController) SetSplitIntoDim(dim, num int) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	if dim < 0 || dim >= bc.numDims {
		return fmt.Errorf("%w: dimension %d of %d", ErrInvalidDimension, dim, bc.numDims)
	}
	if num < 1 {
		return fmt.Errorf("%w: split into %d", ErrInvalidArgument, num)
	}
	bc.splitInto[dim] = num
	bc.calcNumSplit()
	return nil
}

// SetSplitTopInto sets the root fan-out along dim. The first call allocates the
// override with every other dimension set to 1.
func (bc *BoxController) SetSplitTopInto(dim, num int) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	if dim < 0 || dim >= bc.numDims {
		return fmt.Errorf("%w: dimension %d of %d", ErrInvalidDimension, dim, bc.numDims)
	}
	if num < 1 {
		return fmt.Errorf("%w: split top into %d", ErrInvalidArgument, num)
	}
	if bc.splitTopInto == nil {
		bc.splitTopInto = make([]int, bc.numDims)
		for d := range bc.splitTopInto {
			bc.splitTopInto[d] = 1
		}
	}
	bc.splitTopInto[dim] = num
	bc.calcNumSplit()
	return nil
}

func (bc *BoxController) ClearSplitTopInto() error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	bc.splitTopInto = nil
	bc.calcNumSplit()
	return nil
}

func (bc *BoxController) SignificantEventsNumber() uint64 {
	return bc.significantEventsNumber
}

func (bc *BoxController) SetSignificantEventsNumber(n uint64) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	bc.significantEventsNumber = n
	return nil
}

// calcNumSplit recomputes both branching factors and the per-depth ceiling.
func (bc *BoxController) calcNumSplit() {
	bc.numSplit = product(bc.splitInto)
	bc.numTopSplit = 1
	if bc.splitTopInto != nil {
		bc.numTopSplit = product(bc.splitTopInto)
	}
	bc.ResetMaxNumBoxes()
}

// checkedProduct is product that also reports whether it fit in a uint64.
func checkedProduct(v []int) (uint64, bool) {
	p := uint64(1)
	for _, n := range v {
		hi, lo := bits.Mul64(p, uint64(n))
		if hi != 0 {
			return 0, false
		}
		p = lo
	}
	return p, true
}

func product(v []int) uint64 {
	p := uint64(1)
	for _, n := range v {
		p *= uint64(n)
	}
	return p
}

package mdbox

import (
	"errors"

	"MDEventDB/types"
)

// SkipChildren returned from a Walk callback skips the children of the current box.
var SkipChildren = errors.New("skip children")

// Walk visits every box depth first, parents before children. The tree is
// read-locked for the duration, so fn must not insert or split.
func (t *BoxTree) Walk(fn func(b *Box) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return walk(t.root, fn)
}

func walk(b *Box, fn func(b *Box) error) error {
	if err := fn(b); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, c := range b.children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Leaves returns the current leaves in walk order.
func (t *BoxTree) Leaves() []*Box {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leavesLocked()
}

func (t *BoxTree) leavesLocked() []*Box {
	var leaves []*Box
	_ = walk(t.root, func(b *Box) error {
		if b.boxType == BoxLeaf {
			leaves = append(leaves, b)
		}
		return nil
	})
	return leaves
}

// NumEvents counts every event in the tree.
func (t *BoxTree) NumEvents() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.NumEvents()
}

// NumBoxes counts leaves and grid boxes by walking the tree.
func (t *BoxTree) NumBoxes() (leaves, grids int) {
	_ = t.Walk(func(b *Box) error {
		if b.boxType == BoxLeaf {
			leaves++
		} else {
			grids++
		}
		return nil
	})
	return leaves, grids
}

// IntegrateSignal sums signal and squared error over the whole tree.
func (t *BoxTree) IntegrateSignal() (signal, errorSquared float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.Signal()
}

// IntegrateRegion sums signal and squared error of the events inside region.
// Boxes entirely inside region use their totals; leaves cut by its edge are
// scanned event by event.
func (t *BoxTree) IntegrateRegion(region []types.Extent) (signal, errorSquared float64, err error) {
	if len(region) != t.numDims {
		return 0, 0, ErrDimensionMismatch
	}

	var partial []*Box
	err = t.Walk(func(b *Box) error {
		switch overlap(b.extents, region) {
		case overlapNone:
			return SkipChildren
		case overlapFull:
			s, e := b.Signal()
			signal += s
			errorSquared += e
			return SkipChildren
		}
		if b.boxType == BoxLeaf {
			partial = append(partial, b)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, leaf := range partial {
		events, err := t.LeafEvents(leaf)
		if err != nil {
			return 0, 0, err
		}
		for _, ev := range events {
			if types.ContainsPoint(region, ev.Center) {
				signal += float64(ev.Signal)
				errorSquared += float64(ev.ErrorSquared)
			}
		}
	}
	return signal, errorSquared, nil
}

type overlapKind int

const (
	overlapNone overlapKind = iota
	overlapPartial
	overlapFull
)

func overlap(box, region []types.Extent) overlapKind {
	full := true
	for d := range box {
		if box[d].Max <= region[d].Min || box[d].Min >= region[d].Max {
			return overlapNone
		}
		if box[d].Min < region[d].Min || box[d].Max > region[d].Max {
			full = false
		}
	}
	if full {
		return overlapFull
	}
	return overlapPartial
}

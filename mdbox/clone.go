package mdbox

import (
	"fmt"
	"log/slog"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/types"
)

// Clone deep-copies the tree onto bc, usually a clone of the tree's own
// controller. Events held by the store are read back, so the copy lives
// entirely in memory until bc is given a store of its own.
func (t *BoxTree) Clone(bc *boxcontroller.BoxController) (*BoxTree, error) {
	if bc == nil || bc.NumDims() != t.numDims {
		return nil, fmt.Errorf("%w: clone needs a %d-dimensional controller", ErrDimensionMismatch, t.numDims)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	root, err := t.cloneBox(t.root, nil)
	if err != nil {
		return nil, err
	}
	out := &BoxTree{
		bc:      bc,
		root:    root,
		numDims: t.numDims,
		logger:  t.logger,
	}
	t.logger.Debug("cloned tree", slog.Uint64("events", root.NumEvents()))
	return out, nil
}

func (t *BoxTree) cloneBox(b *Box, parent *Box) (*Box, error) {
	c := NewBox(b.id, b.depth, b.extents, parent)
	if b.boxType == BoxGrid {
		c.boxType = BoxGrid
		c.splitInto = append([]int(nil), b.splitInto...)
		c.children = make([]*Box, len(b.children))
		for i, child := range b.children {
			cc, err := t.cloneBox(child, c)
			if err != nil {
				return nil, err
			}
			c.children[i] = cc
		}
		return c, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var events []types.MDEvent
	if b.onDisk {
		store := t.bc.FileIO()
		if store == nil {
			return nil, fmt.Errorf("box %d: %w", b.id, ErrNotFileBacked)
		}
		block, err := store.ReadBlock(b.id)
		if err != nil {
			return nil, fmt.Errorf("clone box %d: %w", b.id, err)
		}
		events = block.Events
	}
	for _, ev := range b.events {
		events = append(events, ev.Clone())
	}

	c.events = events
	c.numEvents = b.numEvents
	c.signal = b.signal
	c.errorSquared = b.errorSquared
	c.atMaxCounted = b.atMaxCounted
	return c, nil
}

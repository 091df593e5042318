package mdbox

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// SplitAllIfNeeded splits every leaf the controller says should split, and
// keeps splitting the resulting children until no leaf qualifies. Leaves are
// split in parallel; the tree is locked against insertion meanwhile.
func (t *BoxTree) SplitAllIfNeeded(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.bc.TotalNumMDGridBoxes()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, leaf := range t.leavesLocked() {
		g.Go(func() error { return t.splitRecursive(gctx, g, leaf) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t.logger.Debug("split pass done",
		slog.Uint64("new_grid_boxes", t.bc.TotalNumMDGridBoxes()-before),
		slog.Uint64("leaves", t.bc.TotalNumMDBoxes()))
	return nil
}

func (t *BoxTree) splitRecursive(ctx context.Context, g *errgroup.Group, b *Box) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := b.NumEvents()
	if !t.bc.WillSplit(n, b.depth) {
		t.countAtMax(b, n)
		return nil
	}
	if err := t.splitLeaf(b); err != nil {
		return err
	}

	for _, child := range b.children {
		if err := t.splitChild(ctx, g, child); err != nil {
			return err
		}
	}
	return nil
}

// splitChild hands the child to an idle worker if there is one and splits it
// on the current goroutine otherwise.
func (t *BoxTree) splitChild(ctx context.Context, g *errgroup.Group, child *Box) error {
	if !t.bc.WillSplit(child.NumEvents(), child.depth) {
		t.countAtMax(child, child.NumEvents())
		return nil
	}
	if g.TryGo(func() error { return t.splitRecursive(ctx, g, child) }) {
		return nil
	}
	return t.splitRecursive(ctx, g, child)
}

// countAtMax reports events of a leaf that is over the split threshold but
// already at the maximum depth. Each event is reported once.
func (t *BoxTree) countAtMax(b *Box, n uint64) {
	if b.depth < t.bc.MaxDepth() || n <= t.bc.SplitThreshold() {
		return
	}
	b.mu.Lock()
	delta := n - b.atMaxCounted
	b.atMaxCounted = n
	b.mu.Unlock()
	if delta > 0 {
		t.bc.AddNumEventsAtMax(delta)
	}
}

// splitLeaf turns leaf b into a grid box and moves its events to the new
// children. The caller must hold t.mu exclusively.
func (t *BoxTree) splitLeaf(b *Box) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := t.loadLocked(b); err != nil {
		return err
	}

	splitInto := t.bc.SplitIntoForDepth(b.depth)
	numChildren := 1
	for _, s := range splitInto {
		numChildren *= s
	}

	first := t.bc.ClaimIDRange(uint64(numChildren))
	children := make([]*Box, numChildren)
	for i := range children {
		children[i] = NewBox(first+uint64(i), b.depth+1, childExtents(b.extents, splitInto, i), b)
	}
	for _, ev := range b.events {
		children[childIndex(b.extents, splitInto, ev.Center)].addEventLocked(ev)
	}

	if b.stored {
		if err := t.bc.FileIO().FreeBlock(b.id); err != nil {
			return fmt.Errorf("free block of split box %d: %w", b.id, err)
		}
	}

	b.boxType = BoxGrid
	b.splitInto = splitInto
	b.children = children
	b.events = nil
	b.numEvents = 0
	b.signal, b.errorSquared = 0, 0
	b.stored = false
	b.onDisk = false

	t.bc.TrackNumBoxes(b.depth)
	t.logger.Debug("split box",
		slog.Uint64("box_id", b.id),
		slog.Int("depth", b.depth),
		slog.Int("children", numChildren))
	return nil
}

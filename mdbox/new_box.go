package mdbox

import (
	"fmt"
	"log/slog"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/types"
)

// NewBoxTree creates a tree whose root leaf covers extents.
func NewBoxTree(bc *boxcontroller.BoxController, extents []types.Extent, logger *slog.Logger) (*BoxTree, error) {
	if bc == nil {
		return nil, fmt.Errorf("nil box controller")
	}
	if len(extents) != bc.NumDims() {
		return nil, fmt.Errorf("%w: %d extents for %d dimensions", ErrDimensionMismatch, len(extents), bc.NumDims())
	}
	for d, ext := range extents {
		if !(ext.Max > ext.Min) {
			return nil, fmt.Errorf("empty extent %s along dimension %d", ext, d)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &BoxTree{
		bc:      bc,
		numDims: bc.NumDims(),
		logger:  logger.With(slog.String("component", "mdbox")),
	}
	t.root = NewBox(bc.GetNextID(), 0, extents, nil)
	return t, nil
}

// NewBox creates an empty leaf.
func NewBox(id uint64, depth int, extents []types.Extent, parent *Box) *Box {
	return &Box{
		id:      id,
		boxType: BoxLeaf,
		depth:   depth,
		extents: append([]types.Extent(nil), extents...),
		parent:  parent,
	}
}

func (b *Box) ID() uint64 { return b.id }
func (b *Box) Type() BoxType { return b.boxType }
func (b *Box) IsLeaf() bool { return b.boxType == BoxLeaf }
func (b *Box) Depth() int { return b.depth }
func (b *Box) Parent() *Box { return b.parent }
func (b *Box) Extents() []types.Extent { return append([]types.Extent(nil), b.extents...) }
func (b *Box) Children() []*Box { return append([]*Box(nil), b.children...) }

// NumEvents counts the events below the box, including those in the store.
func (b *Box) NumEvents() uint64 {
	if b.boxType == BoxGrid {
		var n uint64
		for _, c := range b.children {
			n += c.NumEvents()
		}
		return n
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numEvents
}

// Signal returns the summed signal and squared error below the box.
func (b *Box) Signal() (signal, errorSquared float64) {
	if b.boxType == BoxGrid {
		for _, c := range b.children {
			s, e := c.Signal()
			signal += s
			errorSquared += e
		}
		return signal, errorSquared
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signal, b.errorSquared
}

// OnDisk reports whether some of the leaf's events currently live only in the store.
func (b *Box) OnDisk() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onDisk
}

func (t *BoxTree) Root() *Box {
	return t.root
}

func (t *BoxTree) Controller() *boxcontroller.BoxController {
	return t.bc
}

func (t *BoxTree) NumDims() int {
	return t.numDims
}

// Structure of the box tree
/*
BoxTree
 ├── GridBox (depth d, extents, N children laid out as a grid)
 │      └── GridBox / Box (depth d+1) ...
 │             └── Box (leaf: events, or a block held by the disk-backed store)


- one BoxController per tree; it decides when a leaf splits, numbers new
  boxes and keeps the per-depth box counts
- children of a grid box cover its extents exactly, dimension 0 varies fastest
- a leaf never sits deeper than the controller's max depth
- boxes only ever go from leaf to grid, never back
*/
package mdbox

import (
	"errors"
	"log/slog"
	"sync"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/types"
)

type BoxType int

const (
	BoxLeaf BoxType = iota
	BoxGrid
)

func (t BoxType) String() string {
	if t == BoxGrid {
		return "GRID"
	}
	return "LEAF"
}

var (
	ErrOutOfBounds       = errors.New("event outside the workspace extents")
	ErrDimensionMismatch = errors.New("event dimensionality does not match the tree")
	ErrNotFileBacked     = errors.New("box controller is not file backed")
	ErrMalformedTopology = errors.New("malformed box topology")
)

type Box struct {
	id        uint64
	boxType   BoxType
	depth     int
	extents   []types.Extent
	parent    *Box
	children  []*Box // only for grid boxes
	splitInto []int  // fan-out used when this box split

	mu           sync.Mutex // guards the leaf state below
	events       []types.MDEvent
	numEvents    uint64 // resident and stored events
	signal       float64
	errorSquared float64
	onDisk       bool // part of the events live in the store under id
	stored       bool // the store holds a block for id
	atMaxCounted uint64
}

type BoxTree struct {
	bc      *boxcontroller.BoxController
	root    *Box
	numDims int
	logger  *slog.Logger

	// RLock while inserting, Lock while the shape of the tree changes
	mu       sync.RWMutex
	sealOnce sync.Once
}

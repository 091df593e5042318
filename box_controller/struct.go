// Structure of the box controller
/*
BoxController
 ├── configuration      numDims, splitThreshold, splitInto, splitTopInto, maxDepth, tuning
 ├── id allocator       maxID                               (guarded by idMu)
 ├── box statistics     numMDBoxes, numMDGridBoxes,
 │                      maxNumMDBoxes                       (guarded by statsMu)
 └── file backing       fileIO (optional, never copied by Clone)

- one controller per workspace, shared by every box of its tree
- configuration is mutable only until Seal(); after that setters fail
- the two mutexes are independent and never held together
*/
package boxcontroller

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	DefaultMaxDepth                = 5
	DefaultSplitThreshold          = 1024
	DefaultSignificantEventsNumber = 10_000_000
	DefaultAddingEventsPerTask     = 1000

	// MaxSupportedDepth and MaxSupportedDims bound what a controller, and a
	// persisted one in particular, may ask for.
	MaxSupportedDepth = 64
	MaxSupportedDims  = 32
)

var (
	ErrInvalidDimension       = errors.New("dimension index out of range")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrConfigurationSealed    = errors.New("box controller configuration is sealed")
	ErrMalformedSerialization = errors.New("malformed box controller serialization")
	ErrFileBacking            = errors.New("cannot attach file backing")
)

type BoxController struct {
	numDims int

	splitThreshold          uint64
	significantEventsNumber uint64
	maxDepth                int
	splitInto               []int
	splitTopInto            []int // nil unless the root uses its own fan-out
	numSplit                uint64
	numTopSplit             uint64

	addingEventsPerTask          uint64
	addingEventsNumTasksPerBlock uint64

	sealed         atomic.Bool
	numEventsAtMax atomic.Uint64

	idMu  sync.Mutex
	maxID uint64 // exclusive upper bound of every id handed out

	statsMu        sync.Mutex
	numMDBoxes     []uint64
	numMDGridBoxes []uint64
	maxNumMDBoxes  []float64

	// fileIO is attached and detached by the owning workspace while no
	// insertion is running; the controller does not lock it.
	fileIO BoxControllerIO
}

// New creates a controller for numDims dimensions with default configuration:
// max depth 5, split threshold 1024 and no splitting along any dimension.
// numDims must be at least 1.
func New(numDims int) *BoxController {
	if numDims < 1 {
		panic("boxcontroller: a box controller needs at least one dimension")
	}

	bc := &BoxController{
		numDims:                      numDims,
		splitThreshold:               DefaultSplitThreshold,
		significantEventsNumber:      DefaultSignificantEventsNumber,
		maxDepth:                     DefaultMaxDepth,
		splitInto:                    make([]int, numDims),
		addingEventsPerTask:          DefaultAddingEventsPerTask,
		addingEventsNumTasksPerBlock: defaultTasksPerBlock(),
	}
	for d := range bc.splitInto {
		bc.splitInto[d] = 1
	}
	bc.calcNumSplit()
	bc.ResetNumBoxes()
	return bc
}

func defaultTasksPerBlock() uint64 {
	return uint64(runtime.NumCPU()) * 5
}

func (bc *BoxController) NumDims() int {
	return bc.numDims
}

// Seal ends the configuration phase. It is idempotent.
func (bc *BoxController) Seal() {
	bc.sealed.Store(true)
}

func (bc *BoxController) IsSealed() bool {
	return bc.sealed.Load()
}

func (bc *BoxController) checkConfigurable() error {
	if bc.sealed.Load() {
		return ErrConfigurationSealed
	}
	return nil
}

// Clone returns an independent copy. Configuration, statistics and the id
// counter are copied; the file backing is not and must be re-attached by the
// caller if wanted.
func (bc *BoxController) Clone() *BoxController {
	out := &BoxController{
		numDims:                      bc.numDims,
		splitThreshold:               bc.splitThreshold,
		significantEventsNumber:      bc.significantEventsNumber,
		maxDepth:                     bc.maxDepth,
		splitInto:                    append([]int(nil), bc.splitInto...),
		numSplit:                     bc.numSplit,
		numTopSplit:                  bc.numTopSplit,
		addingEventsPerTask:          bc.addingEventsPerTask,
		addingEventsNumTasksPerBlock: bc.addingEventsNumTasksPerBlock,
	}
	if bc.splitTopInto != nil {
		out.splitTopInto = append([]int(nil), bc.splitTopInto...)
	}
	out.sealed.Store(bc.sealed.Load())
	out.numEventsAtMax.Store(bc.numEventsAtMax.Load())

	bc.idMu.Lock()
	out.maxID = bc.maxID
	bc.idMu.Unlock()

	bc.statsMu.Lock()
	out.numMDBoxes = append([]uint64(nil), bc.numMDBoxes...)
	out.numMDGridBoxes = append([]uint64(nil), bc.numMDGridBoxes...)
	out.maxNumMDBoxes = append([]float64(nil), bc.maxNumMDBoxes...)
	bc.statsMu.Unlock()

	return out
}

// Equals compares configuration only: dimensionality, thresholds, fan-out and
// max depth. Statistics, the id counter, tuning knobs and file backing are ignored.
func (bc *BoxController) Equals(other *BoxController) bool {
	if bc == nil || other == nil {
		return bc == other
	}
	if bc.numDims != other.numDims ||
		bc.splitThreshold != other.splitThreshold ||
		bc.significantEventsNumber != other.significantEventsNumber ||
		bc.maxDepth != other.maxDepth {
		return false
	}
	if !equalInts(bc.splitInto, other.splitInto) {
		return false
	}
	if (bc.splitTopInto == nil) != (other.splitTopInto == nil) {
		return false
	}
	return equalInts(bc.splitTopInto, other.splitTopInto)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package mdbox

import (
	"fmt"
	"log/slog"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/types"
)

// BoxRecord is the persisted shape of one box. Leaf events are either
// inlined as an encoded block or left in the controller's store under ID.
type BoxRecord struct {
	ID           uint64         `json:"id"`
	Depth        int            `json:"depth"`
	Grid         bool           `json:"grid,omitempty"`
	Extents      []types.Extent `json:"extents"`
	SplitInto    []int          `json:"split_into,omitempty"`
	Children     []uint64       `json:"children,omitempty"`
	NumEvents    uint64         `json:"num_events,omitempty"`
	Signal       float64        `json:"signal,omitempty"`
	ErrorSquared float64        `json:"error_squared,omitempty"`
	Events       []byte         `json:"events,omitempty"`
}

// Topology lists every box in walk order. With inline set, leaf events are
// encoded into the records; otherwise they must already be in the store
// (see ReleaseToStore).
func (t *BoxTree) Topology(inline bool) ([]BoxRecord, error) {
	var records []BoxRecord
	err := t.Walk(func(b *Box) error {
		rec := BoxRecord{
			ID:      b.id,
			Depth:   b.depth,
			Extents: append([]types.Extent(nil), b.extents...),
		}
		if b.boxType == BoxGrid {
			rec.Grid = true
			rec.SplitInto = append([]int(nil), b.splitInto...)
			for _, c := range b.children {
				rec.Children = append(rec.Children, c.id)
			}
			records = append(records, rec)
			return nil
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		rec.NumEvents = b.numEvents
		rec.Signal = b.signal
		rec.ErrorSquared = b.errorSquared

		if inline {
			if err := t.loadLocked(b); err != nil {
				return err
			}
			data, err := types.EncodeEventBlock(types.NewEventBlock(t.numDims, b.events))
			if err != nil {
				return fmt.Errorf("encode box %d: %w", b.id, err)
			}
			rec.Events = data
		} else if len(b.events) > 0 {
			return fmt.Errorf("box %d has %d events not released to the store", b.id, len(b.events))
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// RestoreTree rebuilds a tree from records produced by Topology. Leaves
// without inline events are expected in bc's store.
func RestoreTree(bc *boxcontroller.BoxController, records []BoxRecord, logger *slog.Logger) (*BoxTree, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no boxes", ErrMalformedTopology)
	}
	if logger == nil {
		logger = slog.Default()
	}

	numDims := bc.NumDims()
	byID := make(map[uint64]*BoxRecord, len(records))
	for i := range records {
		rec := &records[i]
		if len(rec.Extents) != numDims {
			return nil, fmt.Errorf("%w: box %d has %d extents", ErrMalformedTopology, rec.ID, len(rec.Extents))
		}
		if _, dup := byID[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate box id %d", ErrMalformedTopology, rec.ID)
		}
		byID[rec.ID] = rec
	}

	t := &BoxTree{
		bc:      bc,
		numDims: numDims,
		logger:  logger.With(slog.String("component", "mdbox")),
	}

	if records[0].Depth != 0 {
		return nil, fmt.Errorf("%w: root box %d at depth %d", ErrMalformedTopology, records[0].ID, records[0].Depth)
	}

	visited := make(map[uint64]struct{}, len(records))
	var build func(rec *BoxRecord, parent *Box) (*Box, error)
	build = func(rec *BoxRecord, parent *Box) (*Box, error) {
		if _, again := visited[rec.ID]; again {
			return nil, fmt.Errorf("%w: box %d is referenced more than once", ErrMalformedTopology, rec.ID)
		}
		visited[rec.ID] = struct{}{}
		if rec.Depth > bc.MaxDepth() {
			return nil, fmt.Errorf("%w: box %d at depth %d beyond max depth %d", ErrMalformedTopology, rec.ID, rec.Depth, bc.MaxDepth())
		}
		b := NewBox(rec.ID, rec.Depth, rec.Extents, parent)

		if rec.Grid {
			n := 1
			for _, s := range rec.SplitInto {
				if s < 1 || s > len(rec.Children) {
					n = -1
					break
				}
				n *= s
			}
			if len(rec.SplitInto) != numDims || n != len(rec.Children) {
				return nil, fmt.Errorf("%w: grid box %d has %d children for split %v", ErrMalformedTopology, rec.ID, len(rec.Children), rec.SplitInto)
			}
			b.boxType = BoxGrid
			b.splitInto = append([]int(nil), rec.SplitInto...)
			for _, id := range rec.Children {
				childRec, ok := byID[id]
				if !ok || childRec.Depth != rec.Depth+1 {
					return nil, fmt.Errorf("%w: bad child %d of box %d", ErrMalformedTopology, id, rec.ID)
				}
				child, err := build(childRec, b)
				if err != nil {
					return nil, err
				}
				b.children = append(b.children, child)
			}
			return b, nil
		}

		b.numEvents = rec.NumEvents
		b.signal = rec.Signal
		b.errorSquared = rec.ErrorSquared
		switch {
		case rec.Events != nil:
			block, err := types.DecodeEventBlock(rec.Events)
			if err != nil {
				return nil, fmt.Errorf("box %d: %w", rec.ID, err)
			}
			if uint64(block.Len()) != rec.NumEvents {
				return nil, fmt.Errorf("%w: box %d holds %d events, expected %d", ErrMalformedTopology, rec.ID, block.Len(), rec.NumEvents)
			}
			b.events = block.Events
		case rec.NumEvents > 0:
			if !bc.IsFileBacked() {
				return nil, fmt.Errorf("box %d: %w", rec.ID, ErrNotFileBacked)
			}
			b.onDisk = true
			b.stored = true
		}
		return b, nil
	}

	root, err := build(&records[0], nil)
	if err != nil {
		return nil, err
	}
	if len(visited) != len(records) {
		return nil, fmt.Errorf("%w: %d of %d boxes unreachable from the root", ErrMalformedTopology, len(records)-len(visited), len(records))
	}
	t.root = root
	return t, nil
}

// DepthCounts counts leaves and grid boxes at each depth up to the
// controller's max depth.
func (t *BoxTree) DepthCounts() (leaves, grids []uint64) {
	leaves = make([]uint64, t.bc.MaxDepth()+1)
	grids = make([]uint64, t.bc.MaxDepth()+1)
	_ = t.Walk(func(b *Box) error {
		if b.boxType == BoxGrid {
			grids[b.depth]++
		} else {
			leaves[b.depth]++
		}
		return nil
	})
	return leaves, grids
}

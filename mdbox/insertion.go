package mdbox

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"MDEventDB/types"
)

// AddEvent routes a single event to its leaf. It never splits; call
// SplitAllIfNeeded once a batch is in.
func (t *BoxTree) AddEvent(ev types.MDEvent) error {
	if err := t.checkEvent(ev); err != nil {
		return err
	}
	t.sealOnce.Do(t.bc.Seal)

	t.mu.RLock()
	defer t.mu.RUnlock()
	t.FindLeaf(ev.Center).addEvent(ev)
	return nil
}

func (t *BoxTree) checkEvent(ev types.MDEvent) error {
	if len(ev.Center) != t.numDims {
		return fmt.Errorf("%w: event has %d coordinates, tree has %d dimensions",
			ErrDimensionMismatch, len(ev.Center), t.numDims)
	}
	if !types.ContainsPoint(t.root.extents, ev.Center) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, ev.Center)
	}
	return nil
}

func (b *Box) addEvent(ev types.MDEvent) {
	b.mu.Lock()
	b.addEventLocked(ev)
	b.mu.Unlock()
}

func (b *Box) addEventLocked(ev types.MDEvent) {
	b.events = append(b.events, ev)
	b.numEvents++
	b.signal += float64(ev.Signal)
	b.errorSquared += float64(ev.ErrorSquared)
}

// AddResult summarizes a bulk insertion.
type AddResult struct {
	Added    uint64
	Rejected uint64 // outside the extents or of the wrong dimensionality
	Splits   int    // split passes run while loading
}

// AddEvents bulk-loads events in parallel. Events are handed out in tasks of
// the controller's events-per-task; after every block of tasks the
// controller decides whether the tree should be split before loading more.
// Events that do not fit the tree are counted and skipped.
func (t *BoxTree) AddEvents(ctx context.Context, events []types.MDEvent) (AddResult, error) {
	var res AddResult
	if len(events) == 0 {
		return res, nil
	}
	t.sealOnce.Do(t.bc.Seal)

	perTask, tasksPerBlock := t.bc.AddingEventsParameters()
	blockSize := int(perTask * tasksPerBlock)
	var addedSinceSplit uint64

	for start := 0; start < len(events); start += blockSize {
		end := min(start+blockSize, len(events))
		added, rejected, err := t.addBlock(ctx, events[start:end], int(perTask))
		res.Added += added
		res.Rejected += rejected
		if err != nil {
			return res, err
		}

		addedSinceSplit += added
		if t.bc.ShouldSplitBoxes(t.NumEvents(), addedSinceSplit, t.bc.TotalNumMDBoxes()) {
			if err := t.SplitAllIfNeeded(ctx); err != nil {
				return res, err
			}
			res.Splits++
			addedSinceSplit = 0
		}
	}

	t.logger.Debug("bulk insert done",
		slog.Uint64("added", res.Added),
		slog.Uint64("rejected", res.Rejected),
		slog.Int("splits", res.Splits))
	return res, nil
}

// addBlock inserts one block of events with a worker per task.
func (t *BoxTree) addBlock(ctx context.Context, events []types.MDEvent, perTask int) (added, rejected uint64, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	numTasks := (len(events) + perTask - 1) / perTask
	addedPerTask := make([]uint64, numTasks)
	rejectedPerTask := make([]uint64, numTasks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for task := 0; task < numTasks; task++ {
		chunk := events[task*perTask : min((task+1)*perTask, len(events))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for _, ev := range chunk {
				if t.checkEvent(ev) != nil {
					rejectedPerTask[task]++
					continue
				}
				t.FindLeaf(ev.Center).addEvent(ev)
				addedPerTask[task]++
			}
			return nil
		})
	}
	err = g.Wait()

	for task := range addedPerTask {
		added += addedPerTask[task]
		rejected += rejectedPerTask[task]
	}
	return added, rejected, err
}

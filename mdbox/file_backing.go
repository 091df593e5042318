package mdbox

import (
	"fmt"

	"MDEventDB/types"
)

// loadLocked brings the stored events of leaf b back into memory, ahead of
// any events added since it was released. b.mu must be held.
func (t *BoxTree) loadLocked(b *Box) error {
	if !b.onDisk {
		return nil
	}
	store := t.bc.FileIO()
	if store == nil {
		return fmt.Errorf("box %d: %w", b.id, ErrNotFileBacked)
	}
	block, err := store.ReadBlock(b.id)
	if err != nil {
		return fmt.Errorf("load box %d: %w", b.id, err)
	}
	if block.NumDims != t.numDims {
		return fmt.Errorf("load box %d: block has %d dimensions, tree has %d", b.id, block.NumDims, t.numDims)
	}
	b.events = append(block.Events, b.events...)
	b.onDisk = false
	return nil
}

// ReleaseToStore writes the events of every leaf through the controller's
// store and drops them from memory. Later reads and splits load them back.
func (t *BoxTree) ReleaseToStore() error {
	store := t.bc.FileIO()
	if store == nil {
		return ErrNotFileBacked
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, leaf := range t.leavesLocked() {
		if err := t.releaseLeaf(leaf); err != nil {
			return err
		}
	}
	return nil
}

func (t *BoxTree) releaseLeaf(b *Box) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	if err := t.loadLocked(b); err != nil {
		return err
	}
	block := types.NewEventBlock(t.numDims, b.events)
	if err := t.bc.FileIO().WriteBlock(b.id, block); err != nil {
		return fmt.Errorf("release box %d: %w", b.id, err)
	}
	b.events = nil
	b.onDisk = true
	b.stored = true
	return nil
}

// LeafEvents returns a copy of the events held by leaf b, reading them from
// the store when they were released.
func (t *BoxTree) LeafEvents(b *Box) ([]types.MDEvent, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !b.IsLeaf() {
		return nil, fmt.Errorf("box %d is not a leaf", b.id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []types.MDEvent
	if b.onDisk {
		store := t.bc.FileIO()
		if store == nil {
			return nil, fmt.Errorf("box %d: %w", b.id, ErrNotFileBacked)
		}
		block, err := store.ReadBlock(b.id)
		if err != nil {
			return nil, fmt.Errorf("read box %d: %w", b.id, err)
		}
		out = block.Events
	}
	for _, ev := range b.events {
		out = append(out, ev.Clone())
	}
	return out, nil
}

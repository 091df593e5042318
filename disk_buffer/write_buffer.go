package diskbuffer

import (
	"container/list"
	"fmt"
	"log/slog"

	"MDEventDB/types"
)

/*
The write buffer is the resident part of a file-backed workspace.
Blocks are ordered by use, most recent at the front. Whenever the number of
buffered events exceeds the capacity, blocks are taken from the back: pinned
blocks are skipped, dirty blocks are encoded and written to the pager, and
the block is dropped. Pinned blocks may keep the buffer above capacity.
*/

// NewWriteBuffer creates a buffer holding up to capacity events in memory.
func NewWriteBuffer(capacity uint64, pager Pager, logger *slog.Logger) *WriteBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteBuffer{
		entries:  make(map[uint64]*bufferEntry),
		order:    list.New(),
		capacity: capacity,
		pager:    pager,
		logger:   logger.With(slog.String("component", "write_buffer")),
	}
}

// OnEvict registers a callback run (under the buffer lock) for every block
// that leaves the buffer through eviction.
func (wb *WriteBuffer) OnEvict(fn func(boxID uint64, block types.EventBlock)) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.onEvict = fn
}

// Get returns a buffered block and marks it most recently used.
func (wb *WriteBuffer) Get(boxID uint64) (types.EventBlock, bool) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	e, ok := wb.entries[boxID]
	if !ok {
		wb.misses++
		return types.EventBlock{}, false
	}
	wb.hits++
	wb.order.MoveToFront(e.elem)
	return e.block, true
}

// Put buffers a block, replacing any previous version, and evicts as needed.
// The buffer takes ownership of block.
func (wb *WriteBuffer) Put(boxID uint64, block types.EventBlock, dirty bool) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if e, ok := wb.entries[boxID]; ok {
		wb.used -= uint64(e.block.Len())
		e.block = block
		e.dirty = e.dirty || dirty
		wb.used += uint64(block.Len())
		wb.order.MoveToFront(e.elem)
	} else {
		e := &bufferEntry{boxID: boxID, block: block, dirty: dirty}
		e.elem = wb.order.PushFront(e)
		wb.entries[boxID] = e
		wb.used += uint64(block.Len())
	}

	return wb.evictLocked()
}

// Fill buffers a clean block read from the pager unless boxID is already
// buffered, in which case the buffered version wins and is returned.
func (wb *WriteBuffer) Fill(boxID uint64, block types.EventBlock) (types.EventBlock, bool, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if e, ok := wb.entries[boxID]; ok {
		wb.order.MoveToFront(e.elem)
		return e.block, false, nil
	}
	e := &bufferEntry{boxID: boxID, block: block}
	e.elem = wb.order.PushFront(e)
	wb.entries[boxID] = e
	wb.used += uint64(block.Len())
	return block, true, wb.evictLocked()
}

// evictLocked pages out least recently used blocks until the buffer fits.
func (wb *WriteBuffer) evictLocked() error {
	elem := wb.order.Back()
	for wb.used > wb.capacity && elem != nil {
		e := elem.Value.(*bufferEntry)
		prev := elem.Prev()

		if e.pins > 0 {
			elem = prev
			continue
		}

		wb.logger.Debug("evict", slog.Uint64("box_id", e.boxID), slog.Bool("dirty", e.dirty), slog.Int("events", e.block.Len()))
		if e.dirty {
			if err := wb.writeLocked(e); err != nil {
				return fmt.Errorf("failed to write box %d during eviction: %w", e.boxID, err)
			}
		}

		wb.removeLocked(e)
		wb.evictions++
		storeEvictions.Inc()
		if wb.onEvict != nil {
			wb.onEvict(e.boxID, e.block)
		}
		elem = prev
	}
	return nil
}

func (wb *WriteBuffer) writeLocked(e *bufferEntry) error {
	if wb.pager == nil {
		return fmt.Errorf("pager not set, cannot write box %d", e.boxID)
	}
	data, err := types.EncodeEventBlock(e.block)
	if err != nil {
		return err
	}
	if err := wb.pager.WriteBlock(e.boxID, data); err != nil {
		return err
	}
	storeBytesWritten.Add(float64(len(data)))
	e.dirty = false
	return nil
}

func (wb *WriteBuffer) removeLocked(e *bufferEntry) {
	wb.order.Remove(e.elem)
	delete(wb.entries, e.boxID)
	wb.used -= uint64(e.block.Len())
}

// Remove drops a block without writing it, pinned or not.
func (wb *WriteBuffer) Remove(boxID uint64) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if e, ok := wb.entries[boxID]; ok {
		wb.removeLocked(e)
	}
}

// Pin keeps a buffered block resident until the matching Unpin.
func (wb *WriteBuffer) Pin(boxID uint64) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	e, ok := wb.entries[boxID]
	if !ok {
		return fmt.Errorf("box %d not in write buffer", boxID)
	}
	e.pins++
	return nil
}

func (wb *WriteBuffer) Unpin(boxID uint64) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	e, ok := wb.entries[boxID]
	if !ok {
		return fmt.Errorf("box %d not in write buffer", boxID)
	}
	if e.pins > 0 {
		e.pins--
	}
	return wb.evictLocked()
}

func (wb *WriteBuffer) MarkDirty(boxID uint64) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	e, ok := wb.entries[boxID]
	if !ok {
		return fmt.Errorf("box %d not in write buffer", boxID)
	}
	e.dirty = true
	return nil
}

// Flush writes every dirty block to the pager. Blocks stay buffered.
func (wb *WriteBuffer) Flush() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	flushed := 0
	for elem := wb.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*bufferEntry)
		if !e.dirty {
			continue
		}
		if err := wb.writeLocked(e); err != nil {
			return fmt.Errorf("failed to flush box %d: %w", e.boxID, err)
		}
		flushed++
	}
	wb.logger.Debug("flush", slog.Int("blocks", flushed))
	return nil
}

// Contains reports whether boxID is buffered without touching its recency.
func (wb *WriteBuffer) Contains(boxID uint64) bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	_, ok := wb.entries[boxID]
	return ok
}

func (wb *WriteBuffer) Stats() BufferStats {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	stats := BufferStats{
		Blocks:    len(wb.entries),
		Events:    wb.used,
		Capacity:  wb.capacity,
		Hits:      wb.hits,
		Misses:    wb.misses,
		Evictions: wb.evictions,
	}
	for _, e := range wb.entries {
		if e.dirty {
			stats.DirtyBlocks++
		}
		if e.pins > 0 {
			stats.Pinned++
		}
	}
	return stats
}

func (wb *WriteBuffer) Capacity() uint64 {
	return wb.capacity
}

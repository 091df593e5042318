package diskbuffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"
)

/*
OnDiskPager keeps every block in one data file. Blocks are variable sized:
a rewrite that keeps its size stays in place, anything else moves the block
to the first hole that fits (or the end of the file) and frees the old
region. The block index lives in a JSON sidecar (<data file>.idx) written on
Sync, so a file is only consistent after a Sync or Close.

Regions named by the index on disk stay untouched until the next Sync: a
block they hold is never rewritten in place, and when it moves or is deleted
its region waits in pending until the new index is installed. A crash
between two syncs therefore leaves the last synced index readable.
*/

type OnDiskPager struct {
	file      *os.File
	filePath  string
	indexPath string
	blocks    map[uint64]blockLocation
	synced    map[uint64]blockLocation // index as last written to disk
	pending   []blockLocation          // freed regions still named by synced
	free      *freeSpaceMap
	end       int64 // end of the used region of the data file
	mu        sync.RWMutex
}

type diskIndex struct {
	End    int64                    `json:"end"`
	Blocks map[uint64]blockLocation `json:"blocks"`
}

// NewOnDiskPager opens (or creates) a data file and loads its block index.
// With truncate set, any existing content is discarded.
func NewOnDiskPager(path string, truncate bool) (*OnDiskPager, error) {
	flags := os.O_RDWR | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open block file %s: %w", path, err)
	}

	p := &OnDiskPager{
		file:      file,
		filePath:  path,
		indexPath: path + ".idx",
		blocks:    make(map[uint64]blockLocation),
		synced:    make(map[uint64]blockLocation),
		free:      &freeSpaceMap{},
	}

	if truncate {
		if err := os.Remove(p.indexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			file.Close()
			return nil, fmt.Errorf("failed to remove stale index %s: %w", p.indexPath, err)
		}
		return p, nil
	}

	if err := p.loadIndex(); err != nil {
		file.Close()
		return nil, err
	}
	return p, nil
}

func (p *OnDiskPager) loadIndex() error {
	raw, err := os.ReadFile(p.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index %s: %w", p.indexPath, err)
	}

	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("failed to decode index %s: %w", p.indexPath, err)
	}
	if idx.Blocks != nil {
		p.blocks = idx.Blocks
	}
	p.end = idx.End
	p.free = rebuildFreeSpace(p.blocks, p.end)
	p.synced = maps.Clone(p.blocks)
	return nil
}

// isSynced reports whether loc of boxID is referenced by the index on disk.
func (p *OnDiskPager) isSynced(boxID uint64, loc blockLocation) bool {
	s, ok := p.synced[boxID]
	return ok && s == loc
}

// release gives the region of boxID back, deferring it to the next Sync when
// the index on disk still points at it.
func (p *OnDiskPager) release(boxID uint64, loc blockLocation) {
	if p.isSynced(boxID, loc) {
		p.pending = append(p.pending, loc)
		return
	}
	p.free.free(loc.Pos, loc.Size)
}

func (p *OnDiskPager) ReadBlock(boxID uint64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.file == nil {
		return nil, ErrPagerClosed
	}

	loc, ok := p.blocks[boxID]
	if !ok {
		return nil, fmt.Errorf("box %d: %w", boxID, ErrBlockNotFound)
	}

	data := make([]byte, loc.Size)
	if _, err := p.file.ReadAt(data, loc.Pos); err != nil {
		return nil, fmt.Errorf("failed to read box %d at %d: %w", boxID, loc.Pos, err)
	}
	return data, nil
}

func (p *OnDiskPager) WriteBlock(boxID uint64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}

	size := int64(len(data))
	loc, exists := p.blocks[boxID]
	if !exists || loc.Size != size || p.isSynced(boxID, loc) {
		if exists {
			p.release(boxID, loc)
		}
		loc = blockLocation{Pos: p.allocate(size), Size: size}
	}

	if _, err := p.file.WriteAt(data, loc.Pos); err != nil {
		return fmt.Errorf("failed to write box %d at %d: %w", boxID, loc.Pos, err)
	}
	p.blocks[boxID] = loc
	return nil
}

// allocate reuses a hole when one fits and grows the file otherwise.
func (p *OnDiskPager) allocate(size int64) int64 {
	if pos := p.free.allocate(size); pos >= 0 {
		return pos
	}
	pos := p.end
	p.end += size
	return pos
}

func (p *OnDiskPager) DeleteBlock(boxID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}

	loc, ok := p.blocks[boxID]
	if !ok {
		return nil
	}
	delete(p.blocks, boxID)
	p.release(boxID, loc)
	return nil
}

// Sync writes the block index and flushes the data file.
func (p *OnDiskPager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}
	return p.syncLocked()
}

func (p *OnDiskPager) syncLocked() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", p.filePath, err)
	}

	raw, err := json.Marshal(diskIndex{End: p.end, Blocks: p.blocks})
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	tmp := p.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write index %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.indexPath); err != nil {
		return fmt.Errorf("failed to install index %s: %w", p.indexPath, err)
	}

	p.synced = maps.Clone(p.blocks)
	for _, loc := range p.pending {
		p.free.free(loc.Pos, loc.Size)
	}
	p.pending = nil
	return nil
}

// Close syncs and closes the data file.
func (p *OnDiskPager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil // Already closed
	}

	err := p.syncLocked()
	if err != nil {
		p.file.Close()
		p.file = nil
		return fmt.Errorf("failed to sync before close: %w", err)
	}

	err = p.file.Close()
	p.file = nil // Mark as closed
	return err
}

func (p *OnDiskPager) NumBlocks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.blocks)
}

// FreeBytes is the space inside the used region that no block occupies.
func (p *OnDiskPager) FreeBytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.free.totalFree()
}

func (p *OnDiskPager) FileSize() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.end
}

package diskbuffer

import (
	"fmt"
	"sync"
)

type InMemoryPager struct {
	blocks map[uint64][]byte
	mu     sync.RWMutex
	closed bool
}

func NewInMemoryPager() *InMemoryPager {
	return &InMemoryPager{
		blocks: make(map[uint64][]byte),
	}
}

func (p *InMemoryPager) ReadBlock(boxID uint64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPagerClosed
	}

	data, ok := p.blocks[boxID]
	if !ok {
		return nil, fmt.Errorf("box %d: %w", boxID, ErrBlockNotFound)
	}

	// Return a copy so the caller cannot modify stored data directly
	return append([]byte(nil), data...), nil
}

func (p *InMemoryPager) WriteBlock(boxID uint64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}

	p.blocks[boxID] = append([]byte(nil), data...)
	return nil
}

func (p *InMemoryPager) DeleteBlock(boxID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}

	delete(p.blocks, boxID)
	return nil
}

func (p *InMemoryPager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	return nil
}

func (p *InMemoryPager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	// drop the data so use-after-close shows up as errors instead of stale reads
	p.blocks = nil
	p.closed = true
	return nil
}

func (p *InMemoryPager) NumBlocks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.blocks)
}

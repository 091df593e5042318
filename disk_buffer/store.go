package diskbuffer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/ristretto/v2"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/types"
)

/*
Read path:  write buffer -> read cache -> pager (decoded, then buffered clean)
Write path: write buffer (dirty) -> pager on eviction or Flush

Blocks evicted from the write buffer are kept decoded in a ristretto cache so
that a box touched again soon after eviction does not pay for the decode.
*/

const (
	DefaultWriteBufferEvents = 1 << 22
	DefaultReadCacheEvents   = 1 << 22
)

var _ boxcontroller.BoxControllerIO = (*Store)(nil)

// DefaultConfig is a file-backed store with a 4M-event write buffer and read cache.
func DefaultConfig() Config {
	return Config{
		Backend:           BackendFile,
		WriteBufferEvents: DefaultWriteBufferEvents,
		ReadCacheEvents:   DefaultReadCacheEvents,
	}
}

func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendFile
	}
	return &Store{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "disk_buffer")),
	}
}

// OpenFile opens the backing storage. OpenWrite starts from an empty file;
// OpenRead opens an existing one, which stays writable. The memory backend
// ignores the file name apart from reporting it.
func (s *Store) OpenFile(filename string, mode boxcontroller.OpenMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("store already open on %q", s.filename)
	}

	truncate := mode == boxcontroller.OpenWrite
	if mode == boxcontroller.OpenRead && s.cfg.Backend != BackendMemory {
		if _, err := os.Stat(filename); err != nil {
			return fmt.Errorf("open %q for reading: %w", filename, err)
		}
	}

	var pager Pager
	var err error
	switch s.cfg.Backend {
	case BackendMemory:
		pager = NewInMemoryPager()
	case BackendFile:
		pager, err = NewOnDiskPager(filename, truncate)
	case BackendBadger:
		pager, err = NewBadgerPager(filename, truncate, s.logger)
	default:
		err = fmt.Errorf("unknown storage backend %q", s.cfg.Backend)
	}
	if err != nil {
		return err
	}

	var cache *ristretto.Cache[uint64, types.EventBlock]
	if s.cfg.ReadCacheEvents > 0 {
		cache, err = ristretto.NewCache(&ristretto.Config[uint64, types.EventBlock]{
			NumCounters: max(1000, s.cfg.ReadCacheEvents/10),
			MaxCost:     s.cfg.ReadCacheEvents,
			BufferItems: 64,
		})
		if err != nil {
			pager.Close()
			return fmt.Errorf("create read cache: %w", err)
		}
	}

	buffer := NewWriteBuffer(s.cfg.WriteBufferEvents, pager, s.logger)
	if cache != nil {
		buffer.OnEvict(func(boxID uint64, block types.EventBlock) {
			cache.Set(boxID, block, int64(block.Len())+1)
		})
	}

	s.pager = pager
	s.buffer = buffer
	s.cache = cache
	s.filename = filename
	s.opened = true

	s.logger.Info("store opened",
		slog.String("file", filename),
		slog.String("backend", string(s.cfg.Backend)),
		slog.String("mode", string(mode)),
		slog.Uint64("write_buffer_events", s.cfg.WriteBufferEvents))
	return nil
}

func (s *Store) IsOpened() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

// IsBacked reports whether blocks written now will reach backing storage.
func (s *Store) IsBacked() bool {
	return s.IsOpened()
}

func (s *Store) Filename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filename
}

func (s *Store) parts() (*WriteBuffer, *ristretto.Cache[uint64, types.EventBlock], Pager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return nil, nil, nil, ErrStoreClosed
	}
	return s.buffer, s.cache, s.pager, nil
}

// ReadBlock returns a private copy of the events stored for boxID.
func (s *Store) ReadBlock(boxID uint64) (types.EventBlock, error) {
	buffer, cache, pager, err := s.parts()
	if err != nil {
		return types.EventBlock{}, err
	}

	if block, ok := buffer.Get(boxID); ok {
		storeReads.WithLabelValues("buffer").Inc()
		return block.Clone(), nil
	}

	if cache != nil {
		if block, ok := cache.Get(boxID); ok {
			storeReads.WithLabelValues("cache").Inc()
			s.logger.Debug("cache hit", slog.Uint64("box_id", boxID))
			return block.Clone(), nil
		}
	}

	data, err := pager.ReadBlock(boxID)
	if err != nil {
		return types.EventBlock{}, err
	}
	block, err := types.DecodeEventBlock(data)
	if err != nil {
		return types.EventBlock{}, fmt.Errorf("box %d: %w", boxID, err)
	}
	storeReads.WithLabelValues("disk").Inc()
	s.logger.Debug("loaded from pager", slog.Uint64("box_id", boxID), slog.Int("events", block.Len()))

	buffered, inserted, err := buffer.Fill(boxID, block.Clone())
	if err != nil {
		return types.EventBlock{}, err
	}
	if !inserted {
		return buffered.Clone(), nil
	}
	return block, nil
}

// WriteBlock hands the events of boxID to the store, which takes ownership of block.
func (s *Store) WriteBlock(boxID uint64, block types.EventBlock) error {
	buffer, cache, _, err := s.parts()
	if err != nil {
		return err
	}

	if cache != nil {
		dropCached(cache, boxID)
	}
	storeWrites.Inc()
	return buffer.Put(boxID, block, true)
}

// dropCached removes boxID from the read cache and waits for sets still in
// flight, so that no older version of the block can be served afterwards.
func dropCached(cache *ristretto.Cache[uint64, types.EventBlock], boxID uint64) {
	cache.Del(boxID)
	cache.Wait()
}

// FreeBlock forgets everything stored for boxID.
func (s *Store) FreeBlock(boxID uint64) error {
	buffer, cache, pager, err := s.parts()
	if err != nil {
		return err
	}

	buffer.Remove(boxID)
	if cache != nil {
		dropCached(cache, boxID)
	}
	return pager.DeleteBlock(boxID)
}

// Flush writes all dirty blocks and syncs the pager.
func (s *Store) Flush() error {
	buffer, _, pager, err := s.parts()
	if err != nil {
		return err
	}
	if err := buffer.Flush(); err != nil {
		return err
	}
	return pager.Sync()
}

// Close flushes and releases the backing storage. Closing a closed store is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	flushErr := s.buffer.Flush()
	closeErr := s.pager.Close()
	if s.cache != nil {
		s.cache.Close()
	}

	s.logger.Info("store closed", slog.String("file", s.filename))
	s.opened = false
	s.pager = nil
	s.buffer = nil
	s.cache = nil
	return errors.Join(flushErr, closeErr)
}

// Stats reports the write buffer occupancy. A closed store reports zeros.
func (s *Store) Stats() BufferStats {
	buffer, _, _, err := s.parts()
	if err != nil {
		return BufferStats{}
	}
	return buffer.Stats()
}

// Buffer exposes the write buffer, e.g. to pin blocks during a split.
func (s *Store) Buffer() *WriteBuffer {
	buffer, _, _, _ := s.parts()
	return buffer
}

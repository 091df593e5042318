package diskbuffer

import (
	"container/list"
	"errors"
	"log/slog"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"MDEventDB/types"
)

// ############################################# PAGERS #############################################

// Pager is the persistence abstraction under the write buffer. Blocks are
// opaque encoded event blocks keyed by box id.
type Pager interface {
	ReadBlock(boxID uint64) ([]byte, error)
	WriteBlock(boxID uint64, data []byte) error
	DeleteBlock(boxID uint64) error
	Sync() error
	Close() error
}

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrPagerClosed   = errors.New("pager is closed")
	ErrStoreClosed   = errors.New("store is not open")
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
)

// ############################################# WRITE BUFFER #############################################

// WriteBuffer keeps the most recently used event blocks resident. When the
// number of buffered events passes the capacity, least recently used unpinned
// blocks leave the buffer; dirty ones are written to the pager first.
type WriteBuffer struct {
	mu       sync.Mutex
	entries  map[uint64]*bufferEntry
	order    *list.List // front = most recently used
	capacity uint64     // in events
	used     uint64
	pager    Pager
	onEvict  func(boxID uint64, block types.EventBlock)
	logger   *slog.Logger

	hits      uint64
	misses    uint64
	evictions uint64
}

type bufferEntry struct {
	boxID uint64
	block types.EventBlock
	dirty bool
	pins  int
	elem  *list.Element
}

type BufferStats struct {
	Blocks      int
	Events      uint64
	Capacity    uint64
	DirtyBlocks int
	Pinned      int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
}

// ############################################# STORE #############################################

type Config struct {
	Backend Backend

	// WriteBufferEvents is the number of events kept resident before the
	// least recently used blocks are paged out.
	WriteBufferEvents uint64

	// ReadCacheEvents bounds the cache of decoded blocks that already left
	// the write buffer. Zero disables it.
	ReadCacheEvents int64

	Logger *slog.Logger
}

// Store is the disk-backed event store attached to a file-backed box controller.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex // guards the fields below, not the blocks
	opened   bool
	filename string
	pager    Pager
	buffer   *WriteBuffer
	cache    *ristretto.Cache[uint64, types.EventBlock]
}

package journal

import (
	"errors"
	"log/slog"
	"os"
	"sync"
)

const (
	RecordHeaderSize   = 16
	DefaultSegmentSize = 16 * 1024 * 1024
)

var (
	ErrCorruptRecord = errors.New("corrupt journal record")
	ErrClosed        = errors.New("journal is closed")
)

// Journal is an append-only log of inserted event blocks, split into
// fixed-size segment files.
type Journal struct {
	directory     string
	segmentSize   int64
	currSegment   *segment
	currentLSN    uint64
	nextSegmentID uint64
	segments      map[uint64]*segment
	logger        *slog.Logger
	closed        bool
	mu            sync.RWMutex
}

type segment struct {
	id       uint64
	filePath string
	file     *os.File
	size     int64
	mu       sync.Mutex
}

type record struct {
	lsn  uint64
	data []byte
	crc  uint32
}

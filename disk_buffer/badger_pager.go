package diskbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerPager stores each block under its own key in an embedded BadgerDB.
// Blocks are rewritten in place by key, so no free-space bookkeeping is needed.
type BadgerPager struct {
	db   *badger.DB
	path string
}

var blockKeyPrefix = []byte("block/")

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerPager opens a BadgerDB directory at path. An empty path opens an
// in-memory database. With truncate set, every stored block is dropped.
func NewBadgerPager(path string, truncate bool, logger *slog.Logger) (*BadgerPager, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}

	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	if truncate {
		if err := db.DropPrefix(blockKeyPrefix); err != nil {
			db.Close()
			return nil, fmt.Errorf("drop stored blocks: %w", err)
		}
	}

	return &BadgerPager{db: db, path: path}, nil
}

func blockKey(boxID uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+8)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint64(key[len(blockKeyPrefix):], boxID)
	return key
}

func (p *BadgerPager) ReadBlock(boxID uint64) ([]byte, error) {
	if p.db == nil {
		return nil, ErrPagerClosed
	}

	var data []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(boxID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("box %d: %w", boxID, ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read box %d: %w", boxID, err)
	}
	return data, nil
}

func (p *BadgerPager) WriteBlock(boxID uint64, data []byte) error {
	if p.db == nil {
		return ErrPagerClosed
	}

	value := append([]byte(nil), data...)
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(boxID), value)
	})
	if err != nil {
		return fmt.Errorf("write box %d: %w", boxID, err)
	}
	return nil
}

func (p *BadgerPager) DeleteBlock(boxID uint64) error {
	if p.db == nil {
		return ErrPagerClosed
	}

	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blockKey(boxID))
	})
	if err != nil {
		return fmt.Errorf("delete box %d: %w", boxID, err)
	}
	return nil
}

func (p *BadgerPager) Sync() error {
	if p.db == nil {
		return ErrPagerClosed
	}
	if p.path == "" {
		return nil
	}
	return p.db.Sync()
}

func (p *BadgerPager) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

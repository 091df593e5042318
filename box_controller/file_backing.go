package boxcontroller

import (
	"errors"
	"fmt"

	"MDEventDB/types"
)

type OpenMode string

const (
	OpenRead  OpenMode = "r"
	OpenWrite OpenMode = "w"
)

// BoxControllerIO is the disk-backed store a file-backed controller hands to
// its boxes. Implementations keep recently used blocks resident and page the
// rest to a backing file; all of their I/O happens outside the controller's
// locks and their errors reach the caller untouched.
type BoxControllerIO interface {
	OpenFile(filename string, mode OpenMode) error
	IsOpened() bool
	Filename() string

	ReadBlock(boxID uint64) (types.EventBlock, error)
	WriteBlock(boxID uint64, block types.EventBlock) error
	FreeBlock(boxID uint64) error

	Flush() error
	IsBacked() bool
	Close() error
}

// SetFileBacked attaches store, opening filename for writing if the store is
// not already open. Only the workspace control goroutine may call it, and
// never while events are being inserted.
func (bc *BoxController) SetFileBacked(store BoxControllerIO, filename string) error {
	if store == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidArgument)
	}
	if !store.IsOpened() {
		if err := store.OpenFile(filename, OpenWrite); err != nil {
			return fmt.Errorf("%w %q: %w", ErrFileBacking, filename, err)
		}
	}
	if !store.IsOpened() {
		return fmt.Errorf("%w %q: store did not open", ErrFileBacking, filename)
	}
	bc.fileIO = store
	return nil
}

// ClearFileBacked flushes and closes the attached store and detaches it. The
// store is detached even when flushing or closing fails.
func (bc *BoxController) ClearFileBacked() error {
	if bc.fileIO == nil {
		return nil
	}
	store := bc.fileIO
	bc.fileIO = nil
	return errors.Join(store.Flush(), store.Close())
}

func (bc *BoxController) IsFileBacked() bool {
	return bc.fileIO != nil
}

// FileIO returns the attached store, or nil for an in-memory controller.
func (bc *BoxController) FileIO() BoxControllerIO {
	return bc.fileIO
}

// Filename is the backing file name, empty for an in-memory controller.
func (bc *BoxController) Filename() string {
	if bc.fileIO == nil {
		return ""
	}
	return bc.fileIO.Filename()
}

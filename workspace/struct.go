// Structure of a workspace
/*
Workspace (directory)
 ├── workspace.json     id, controller XML, box topology, journal checkpoint
 ├── events.mdbox(.idx) leaf event blocks (file backend; badger uses a directory)
 └── journal/           event blocks added since the last save

- the controller is rebuilt from its XML, its box counters from the topology
- journal records after the checkpoint are replayed on open
- a file-backed workspace is saved on close, its event file is kept in place
*/
package workspace

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/config"
	diskbuffer "MDEventDB/disk_buffer"
	journal "MDEventDB/event_journal"
	"MDEventDB/mdbox"
)

const (
	FileName       = "workspace.json"
	JournalDirName = "journal"
	formatVersion  = 1
)

var (
	ErrNoDirectory = errors.New("workspace has no directory")
	ErrClosed      = errors.New("workspace is closed")
	ErrBadFile     = errors.New("unreadable workspace file")
)

type Workspace struct {
	id      uuid.UUID
	dir     string
	created time.Time
	cfg     *config.Config
	logger  *slog.Logger

	bc          *boxcontroller.BoxController
	tree        *mdbox.BoxTree
	backend     string
	storagePath string            // as configured, relative to dir unless absolute
	store       *diskbuffer.Store // nil for the none backend
	journal     *journal.Journal  // nil when journaling is off

	// RLock while adding events, Lock for save, clone and close
	mu     sync.RWMutex
	closed bool
}

// workspaceFile is the layout of workspace.json.
type workspaceFile struct {
	Version       int               `json:"version"`
	ID            string            `json:"id"`
	Created       time.Time         `json:"created"`
	Saved         time.Time         `json:"saved"`
	NumDims       int               `json:"num_dims"`
	BoxController string            `json:"box_controller"`
	Backend       string            `json:"storage_backend"`
	StoragePath   string            `json:"storage_path,omitempty"`
	CheckpointLSN uint64            `json:"checkpoint_lsn"`
	NumEvents     uint64            `json:"num_events"`
	Boxes         []mdbox.BoxRecord `json:"boxes"`
}

// Summary is a snapshot for reporting.
type Summary struct {
	ID             string
	Dir            string
	NumDims        int
	NumEvents      uint64
	Leaves         int
	GridBoxes      int
	AverageDepth   float64
	MaxBoxID       uint64
	EventsAtMax    uint64
	Backend        string
	StoragePath    string
	BufferedEvents uint64
	LastLSN        uint64
}

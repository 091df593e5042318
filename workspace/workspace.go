package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	boxcontroller "MDEventDB/box_controller"
	"MDEventDB/config"
	diskbuffer "MDEventDB/disk_buffer"
	journal "MDEventDB/event_journal"
	"MDEventDB/mdbox"
	"MDEventDB/types"
)

const defaultStorageName = "events.mdbox"

// Create makes a new, empty workspace in dir. dir may be empty for a purely
// in-memory workspace, which can only be saved with SaveAs.
func Create(dir string, cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}

	bc, err := cfg.Controller.Build()
	if err != nil {
		return nil, err
	}

	w := newWorkspace(uuid.New(), dir, cfg, logger)
	w.created = time.Now().UTC()
	w.bc = bc
	w.backend = cfg.Storage.Backend
	w.storagePath = cfg.Storage.Path

	if err := w.attachStore(boxcontroller.OpenWrite); err != nil {
		return nil, err
	}
	if w.tree, err = mdbox.NewBoxTree(bc, cfg.Extents, w.logger); err != nil {
		w.bc.ClearFileBacked()
		return nil, err
	}
	if err := w.openJournal(0, true); err != nil {
		w.bc.ClearFileBacked()
		return nil, err
	}

	w.logger.Info("workspace created",
		slog.String("dir", dir),
		slog.Int("dims", bc.NumDims()),
		slog.String("backend", w.backend))
	return w, nil
}

// Open loads the workspace saved in dir. The controller and the tree come
// from the workspace file; cfg supplies the buffer sizes, the journal and
// logging settings. Journal records newer than the last save are replayed.
func Open(dir string, cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace file: %w", err)
	}
	var f workspaceFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFile, err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadFile, f.Version)
	}
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %w", ErrBadFile, err)
	}

	bc, err := boxcontroller.Parse(f.BoxController)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFile, err)
	}
	if bc.NumDims() != f.NumDims {
		return nil, fmt.Errorf("%w: controller has %d dimensions, file %d", ErrBadFile, bc.NumDims(), f.NumDims)
	}

	w := newWorkspace(id, dir, cfg, logger)
	w.created = f.Created
	w.bc = bc
	w.backend = f.Backend
	w.storagePath = f.StoragePath

	if err := w.attachStore(boxcontroller.OpenRead); err != nil {
		return nil, err
	}
	if w.tree, err = mdbox.RestoreTree(bc, f.Boxes, w.logger); err != nil {
		w.bc.ClearFileBacked()
		return nil, fmt.Errorf("%w: %w", ErrBadFile, err)
	}
	w.restoreCounters()
	bc.Seal()

	if err := w.openJournal(f.CheckpointLSN, false); err != nil {
		w.bc.ClearFileBacked()
		return nil, err
	}
	if err := w.replayJournal(f.CheckpointLSN); err != nil {
		w.journal.Close()
		w.bc.ClearFileBacked()
		return nil, err
	}

	w.logger.Info("workspace opened",
		slog.String("dir", dir),
		slog.String("events", humanize.Comma(int64(w.tree.NumEvents()))),
		slog.Int("boxes", len(f.Boxes)))
	return w, nil
}

func newWorkspace(id uuid.UUID, dir string, cfg *config.Config, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		id:  id,
		dir: dir,
		cfg: cfg,
		logger: logger.With(
			slog.String("component", "workspace"),
			slog.String("workspace", id.String())),
	}
}

func (w *Workspace) resolveStoragePath() string {
	p := w.storagePath
	if p == "" {
		p = defaultStorageName
	}
	if filepath.IsAbs(p) || w.dir == "" {
		return p
	}
	return filepath.Join(w.dir, p)
}

// attachStore opens the configured store and makes the controller file backed.
func (w *Workspace) attachStore(mode boxcontroller.OpenMode) error {
	if w.backend == "none" || w.backend == "" {
		return nil
	}

	// an opened workspace may use a backend its configuration does not name
	sc, ok := w.cfg.Storage.StoreConfig(w.logger)
	if !ok {
		sc = diskbuffer.DefaultConfig()
		sc.Logger = w.logger
	}
	sc.Backend = diskbuffer.Backend(w.backend)

	store := diskbuffer.NewStore(sc)
	path := w.resolveStoragePath()
	if err := store.OpenFile(path, mode); err != nil {
		return fmt.Errorf("failed to open event storage: %w", err)
	}
	if err := w.bc.SetFileBacked(store, path); err != nil {
		store.Close()
		return err
	}
	w.store = store
	return nil
}

func (w *Workspace) openJournal(checkpoint uint64, fresh bool) error {
	if !w.cfg.Journal.Enabled {
		return nil
	}
	dir := w.cfg.Journal.Dir
	if dir == "" {
		if w.dir == "" {
			return fmt.Errorf("journal: %w", ErrNoDirectory)
		}
		dir = filepath.Join(w.dir, JournalDirName)
	}

	j, err := journal.Open(dir, w.cfg.Journal.SegmentSize, w.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	if fresh {
		if err := j.Truncate(); err != nil {
			j.Close()
			return err
		}
	}
	j.EnsureLSN(checkpoint)
	w.journal = j
	return nil
}

func (w *Workspace) replayJournal(checkpoint uint64) error {
	if w.journal == nil {
		return nil
	}
	ctx := context.Background()
	records := 0
	err := w.journal.Replay(checkpoint+1, func(lsn uint64, block types.EventBlock) error {
		records++
		_, err := w.tree.AddEvents(ctx, block.Events)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	if records > 0 {
		w.logger.Info("replayed journal", slog.Int("records", records), slog.Uint64("from_lsn", checkpoint+1))
		return w.releaseEvents()
	}
	return nil
}

// restoreCounters rebuilds the controller's box statistics from the tree.
func (w *Workspace) restoreCounters() {
	w.bc.ResetNumBoxes()
	leaves, grids := w.tree.DepthCounts()
	for depth := range leaves {
		w.bc.ClearBoxesCounter(depth)
		w.bc.IncBoxesCounter(depth, leaves[depth])
		w.bc.ClearGridBoxesCounter(depth)
		w.bc.IncGridBoxesCounter(depth, grids[depth])
	}

	// ids must stay ahead of every box in the file
	var maxID uint64
	_ = w.tree.Walk(func(b *mdbox.Box) error {
		maxID = max(maxID, b.ID())
		return nil
	})
	if w.bc.MaxID() <= maxID {
		w.bc.SetMaxID(maxID + 1)
	}
}

// releaseEvents hands leaf events to the store, which pages them out as its
// write buffer fills.
func (w *Workspace) releaseEvents() error {
	if w.store == nil {
		return nil
	}
	return w.tree.ReleaseToStore()
}

// AddEvents journals the events, when enabled, and loads them into the tree.
func (w *Workspace) AddEvents(ctx context.Context, events []types.MDEvent) (mdbox.AddResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return mdbox.AddResult{}, ErrClosed
	}
	if len(events) == 0 {
		return mdbox.AddResult{}, nil
	}

	if w.journal != nil {
		if _, err := w.journal.Append(types.NewEventBlock(w.bc.NumDims(), events)); err != nil {
			return mdbox.AddResult{}, err
		}
		if err := w.journal.Sync(); err != nil {
			return mdbox.AddResult{}, err
		}
	}

	res, err := w.tree.AddEvents(ctx, events)
	if err != nil {
		return res, err
	}
	return res, w.releaseEvents()
}

// SplitAll splits every leaf that is over the threshold.
func (w *Workspace) SplitAll(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.tree.SplitAllIfNeeded(ctx); err != nil {
		return err
	}
	return w.releaseEvents()
}

// Save writes the workspace file and truncates the journal.
func (w *Workspace) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.saveLocked()
}

// SaveAs saves the workspace into dir, which becomes its directory. Only a
// workspace whose events are not kept in a backing file can move.
func (w *Workspace) SaveAs(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.persistentStore() {
		return fmt.Errorf("cannot move a workspace backed by %s", w.resolveStoragePath())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	w.dir = dir
	return w.saveLocked()
}

// persistentStore reports whether leaf events live in a backing file rather
// than in the workspace file.
func (w *Workspace) persistentStore() bool {
	return w.store != nil && w.backend != string(diskbuffer.BackendMemory)
}

func (w *Workspace) saveLocked() error {
	if w.dir == "" {
		return ErrNoDirectory
	}

	inline := !w.persistentStore()
	if !inline {
		if err := w.tree.ReleaseToStore(); err != nil {
			return err
		}
		if err := w.store.Flush(); err != nil {
			return fmt.Errorf("failed to flush event storage: %w", err)
		}
	}

	records, err := w.tree.Topology(inline)
	if err != nil {
		return err
	}

	var checkpoint uint64
	if w.journal != nil {
		checkpoint = w.journal.LastLSN()
	}

	f := workspaceFile{
		Version:       formatVersion,
		ID:            w.id.String(),
		Created:       w.created,
		Saved:         time.Now().UTC(),
		NumDims:       w.bc.NumDims(),
		BoxController: w.bc.ToSerializedForm(),
		Backend:       w.backend,
		StoragePath:   w.storagePath,
		CheckpointLSN: checkpoint,
		NumEvents:     w.tree.NumEvents(),
		Boxes:         records,
	}
	if inline {
		// an in-memory store does not survive the process
		f.Backend = "none"
		f.StoragePath = ""
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workspace file: %w", err)
	}
	path := filepath.Join(w.dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write workspace file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to install workspace file: %w", err)
	}

	if w.journal != nil {
		if err := w.journal.Truncate(); err != nil {
			return err
		}
	}

	w.logger.Info("workspace saved",
		slog.String("file", path),
		slog.String("size", humanize.Bytes(uint64(len(data)))),
		slog.String("events", humanize.Comma(int64(f.NumEvents))),
		slog.Int("boxes", len(records)))
	return nil
}

// Clone returns an independent in-memory copy with a new id. It has no
// directory, store or journal; use SaveAs to persist it.
func (w *Workspace) Clone() (*Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	bc := w.bc.Clone()
	tree, err := w.tree.Clone(bc)
	if err != nil {
		return nil, err
	}

	cfg := *w.cfg
	cfg.Storage.Backend = "none"
	cfg.Storage.Path = ""
	cfg.Journal.Enabled = false

	clone := newWorkspace(uuid.New(), "", &cfg, w.logger)
	clone.created = time.Now().UTC()
	clone.bc = bc
	clone.tree = tree
	clone.backend = "none"
	return clone, nil
}

// Close saves a file-backed workspace, then releases the store and the
// journal. Other workspaces are not saved; their unsaved events survive
// only in the journal.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	var errs []error
	if w.persistentStore() && w.dir != "" {
		errs = append(errs, w.saveLocked())
	}
	if w.journal != nil {
		errs = append(errs, w.journal.Close())
	}
	errs = append(errs, w.bc.ClearFileBacked())
	w.closed = true

	w.logger.Info("workspace closed", slog.String("dir", w.dir))
	return errors.Join(errs...)
}

func (w *Workspace) ID() string                              { return w.id.String() }
func (w *Workspace) Dir() string                             { return w.dir }
func (w *Workspace) Controller() *boxcontroller.BoxController { return w.bc }
func (w *Workspace) Tree() *mdbox.BoxTree                    { return w.tree }

// Store is the disk-backed store, or nil when events stay in memory.
func (w *Workspace) Store() *diskbuffer.Store { return w.store }

func (w *Workspace) Summary() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()

	leaves, grids := w.tree.NumBoxes()
	stats := w.bc.Statistics()
	s := Summary{
		ID:           w.id.String(),
		Dir:          w.dir,
		NumDims:      w.bc.NumDims(),
		NumEvents:    w.tree.NumEvents(),
		Leaves:       leaves,
		GridBoxes:    grids,
		AverageDepth: stats.AverageDepth,
		MaxBoxID:     stats.MaxID,
		EventsAtMax:  stats.NumEventsAtMax,
		Backend:      w.backend,
	}
	if w.store != nil {
		s.StoragePath = w.resolveStoragePath()
		s.BufferedEvents = w.store.Stats().Events
	}
	if w.journal != nil {
		s.LastLSN = w.journal.LastLSN()
	}
	return s
}

package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"MDEventDB/types"
)

/*

Journal Segment File
────────────────────────────────────
| Record | Record | Record | ...   |
────────────────────────────────────

Each Record:
────────────────────────────────────────────
| LSN (8) | LEN (4) | CRC (4) | DATA (LEN) |
────────────────────────────────────────────

DATA is one encoded event block (types.EncodeEventBlock). A record cut short
at the end of the last segment is the trace of a crash during Append; it is
dropped on Open.

*/

// Open opens (or creates) the journal in directory. segmentSize <= 0 selects
// DefaultSegmentSize.
func Open(directory string, segmentSize int64, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		directory:   directory,
		segmentSize: segmentSize,
		segments:    make(map[uint64]*segment),
		logger:      logger.With(slog.String("component", "journal")),
	}

	if err := j.recover(); err != nil {
		j.closeSegments()
		return nil, err
	}

	if j.currSegment == nil {
		if err := j.createNewSegment(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// recover opens the existing segments, restores the LSN counter and cuts off
// a torn record at the end of the last segment.
func (j *Journal) recover() error {
	ids, err := j.segmentIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for i, id := range ids {
		seg := newSegment(id, j.directory)
		validEnd, torn, err := scanSegment(seg.filePath, func(rec record) error {
			j.currentLSN = max(j.currentLSN, rec.lsn)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to recover segment %d: %w", id, err)
		}
		if torn {
			if i != len(ids)-1 {
				return fmt.Errorf("segment %d: %w: truncated record before the last segment", id, ErrCorruptRecord)
			}
			j.logger.Warn("dropping torn record at the end of the journal",
				slog.Uint64("segment", id), slog.Int64("offset", validEnd))
			if err := os.Truncate(seg.filePath, validEnd); err != nil {
				return err
			}
		}
		if err := seg.open(); err != nil {
			return err
		}
		j.segments[id] = seg
	}

	last := ids[len(ids)-1]
	j.currSegment = j.segments[last]
	j.nextSegmentID = last + 1

	j.logger.Info("journal recovered",
		slog.Int("segments", len(ids)),
		slog.Uint64("last_lsn", j.currentLSN))
	return nil
}

func (j *Journal) segmentIDs() ([]uint64, error) {
	files, err := filepath.Glob(filepath.Join(j.directory, "journal_*.log"))
	if err != nil {
		return nil, err
	}

	var ids []uint64
	for _, file := range files {
		hexPart := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "journal_"), ".log")
		id, err := strconv.ParseUint(hexPart, 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (j *Journal) createNewSegment() error {
	seg := newSegment(j.nextSegmentID, j.directory)
	if err := seg.open(); err != nil {
		return err
	}
	j.segments[seg.id] = seg
	j.currSegment = seg
	j.nextSegmentID++
	return nil
}

// scanSegment calls fn for every intact record of the segment file. It
// returns the offset just past the last intact record and whether a partial
// record follows it.
func scanSegment(path string, fn func(rec record) error) (validEnd int64, torn bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	header := make([]byte, RecordHeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return validEnd, false, nil
			}
			if err == io.ErrUnexpectedEOF {
				return validEnd, true, nil
			}
			return validEnd, false, err
		}

		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[8:12])
		crc := binary.BigEndian.Uint32(header[12:16])

		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return validEnd, true, nil
			}
			return validEnd, false, err
		}

		if calculateCRC(lsn, data) != crc {
			return validEnd, false, fmt.Errorf("%w: CRC mismatch at LSN %d", ErrCorruptRecord, lsn)
		}

		if err := fn(record{lsn: lsn, data: data, crc: crc}); err != nil {
			return validEnd, false, err
		}
		validEnd += int64(RecordHeaderSize) + int64(dataLen)
	}
}

// Append writes block as the next record and returns its LSN. The record is
// durable only after Sync.
func (j *Journal) Append(block types.EventBlock) (uint64, error) {
	data, err := types.EncodeEventBlock(block)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, ErrClosed
	}

	if j.currSegment.isFull(j.segmentSize) {
		if err := j.createNewSegment(); err != nil {
			return 0, err
		}
	}

	lsn := j.currentLSN + 1
	rec := &record{lsn: lsn, data: data, crc: calculateCRC(lsn, data)}
	if err := j.currSegment.append(rec.encode()); err != nil {
		return 0, fmt.Errorf("failed to append LSN %d: %w", lsn, err)
	}
	j.currentLSN = lsn
	return lsn, nil
}

func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	return j.currSegment.sync()
}

// Replay calls fn, in LSN order, for every record with an LSN of at least fromLSN.
func (j *Journal) Replay(fromLSN uint64, fn func(lsn uint64, block types.EventBlock) error) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrClosed
	}

	ids := make([]uint64, 0, len(j.segments))
	for id := range j.segments {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	replayed := 0
	for _, id := range ids {
		_, _, err := scanSegment(j.segments[id].filePath, func(rec record) error {
			if rec.lsn < fromLSN {
				return nil
			}
			block, err := types.DecodeEventBlock(rec.data)
			if err != nil {
				return fmt.Errorf("failed to decode LSN %d: %w", rec.lsn, err)
			}
			if err := fn(rec.lsn, block); err != nil {
				return fmt.Errorf("failed to apply LSN %d: %w", rec.lsn, err)
			}
			replayed++
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to replay segment %d: %w", id, err)
		}
	}

	j.logger.Debug("journal replayed", slog.Uint64("from_lsn", fromLSN), slog.Int("records", replayed))
	return nil
}

// Truncate discards every record, typically once their events are saved.
// LSNs keep increasing across a truncation. The journal stays writable when
// Truncate fails: the new segment is in place before the old ones go.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	old := j.segments
	prev := j.currSegment
	j.segments = make(map[uint64]*segment)
	if err := j.createNewSegment(); err != nil {
		j.segments = old
		j.currSegment = prev
		return fmt.Errorf("failed to start a new segment: %w", err)
	}

	// a segment left behind only holds LSNs below every later checkpoint
	var errs []error
	for _, seg := range old {
		if err := seg.close(); err != nil {
			errs = append(errs, err)
		}
		if err := os.Remove(seg.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	j.logger.Debug("journal truncated", slog.Uint64("last_lsn", j.currentLSN))
	return nil
}

// LastLSN is the LSN of the most recent record, 0 for a journal never written to.
func (j *Journal) LastLSN() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.currentLSN
}

// EnsureLSN moves the LSN counter forward to at least lsn. A workspace uses it
// after reopening a truncated journal, so new records sort after its checkpoint.
func (j *Journal) EnsureLSN(lsn uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.currentLSN = max(j.currentLSN, lsn)
}

func (j *Journal) NumSegments() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.segments)
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.closeSegments()
}

func (j *Journal) closeSegments() error {
	var errs []error
	for _, seg := range j.segments {
		if err := seg.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

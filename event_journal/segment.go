package journal

import (
	"fmt"
	"os"
	"path/filepath"
)

func newSegment(id uint64, dir string) *segment {
	return &segment{
		id:       id,
		filePath: filepath.Join(dir, fmt.Sprintf("journal_%016x.log", id)),
	}
}

// open opens the segment file in append-only mode
func (s *segment) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return nil
	}

	file, err := os.OpenFile(s.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	s.file = file
	s.size = stat.Size()
	return nil
}

func (s *segment) append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("segment %d not opened", s.id)
	}

	n, err := s.file.Write(data)
	s.size += int64(n)
	return err
}

func (s *segment) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("segment %d not opened", s.id)
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	syncErr := s.file.Sync()
	err := s.file.Close()
	s.file = nil
	if syncErr != nil {
		return syncErr
	}
	return err
}

func (s *segment) isFull(limit int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size >= limit
}

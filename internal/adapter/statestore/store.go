// Package statestore persists the tracked cell set between frames as a JSON file.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/goccy/go-json"
)

// FileStore reads and replaces a JSON array of cell records.
// It implements pipeline.StateStore.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by path. The file need not exist yet.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the stored cells. A missing or empty file is an empty set. Content
// that cannot be decoded yields an error wrapping domain.ErrCorruptState.
func (s *FileStore) Load(_ context.Context) ([]domain.CellRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.CellRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []domain.CellRecord{}, nil
	}

	var cells []domain.CellRecord
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("decode state %s: %w: %w", s.path, domain.ErrCorruptState, err)
	}
	if cells == nil {
		cells = []domain.CellRecord{}
	}
	return cells, nil
}

// Save replaces the stored cells. The new content is written to a temporary file
// in the same directory and renamed over the old one, so readers never observe a
// partially written file.
func (s *FileStore) Save(_ context.Context, cells []domain.CellRecord) error {
	if cells == nil {
		cells = []domain.CellRecord{}
	}
	data, err := json.MarshalIndent(cells, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state %s: %w", s.path, err)
	}

	s.logger.Debug("state saved", "path", s.path, "cells", len(cells))
	return nil
}

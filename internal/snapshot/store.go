package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/aqasim81/pgledger/internal/project"
)

// Store persists the baseline snapshot as JSON inside the project state directory.
type Store struct {
	path string
}

// NewStore returns a baseline store for the project.
func NewStore(pc project.Context) *Store {
	return &Store{path: pc.SnapshotPath()}
}

// Path returns the baseline file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the baseline. It returns ErrNoBaseline when none was saved.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoBaseline
		}

		return nil, fmt.Errorf("reading baseline %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptBaseline, s.path, err)
	}

	if snap.Columns == nil {
		snap.Columns = []Column{}
	}

	return &snap, nil
}

// Save atomically replaces the baseline with snap.
func (s *Store) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating baseline directory: %w", err)
	}

	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing baseline %s: %w", s.path, err)
	}

	return nil
}

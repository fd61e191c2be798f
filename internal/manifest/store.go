package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/aqasim81/pgledger/internal/project"
)

const (
	// DefaultLockTimeout bounds how long Lock waits for another process.
	DefaultLockTimeout = 10 * time.Second

	lockRetryDelay = 50 * time.Millisecond
	filePerm       = 0o644
	dirPerm        = 0o755
)

// Store persists the Tracker as a JSON document. Writes replace the file
// atomically; Lock serializes load-mutate-save cycles across processes.
type Store struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout sets how long Lock waits before returning ErrLocked.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source used for LastSync.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store for the project's manifest.
func NewStore(pc project.Context, opts ...Option) *Store {
	s := &Store{
		path:        pc.ManifestPath(),
		lockPath:    pc.LockPath(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	if s.lockTimeout <= 0 {
		s.lockTimeout = DefaultLockTimeout
	}

	return s
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the Tracker. When no manifest exists yet a fresh Tracker is
// created and persisted. A manifest that exists but cannot be decoded is
// reported as ErrCorrupt and left untouched.
func (s *Store) Load() (*Tracker, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading manifest %s: %w", s.path, err)
		}

		s.logger.Info("initializing manifest", slog.String("path", s.path))

		t := NewTracker()
		if err := s.Save(t); err != nil {
			return nil, err
		}

		return t, nil
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, s.path)
	}

	var t Tracker
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrCorrupt, s.path, err)
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
	}

	return &t, nil
}

// Save stamps LastSync and atomically replaces the manifest file.
func (s *Store) Save(t *Tracker) error {
	t.LastSync = s.now().UTC()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	if err := renameio.WriteFile(s.path, append(data, '\n'), filePerm); err != nil {
		return fmt.Errorf("writing manifest %s: %w", s.path, err)
	}

	s.logger.Debug("manifest saved",
		slog.String("path", s.path),
		slog.String("current_version", t.CurrentVersion),
		slog.Int("migrations", len(t.Migrations)),
	)

	return nil
}

// Lock takes the advisory file lock guarding the manifest. The returned
// function releases it. Lock is not reentrant: callers holding the lock
// must use Load and Save directly instead of Update.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), dirPerm); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.lockPath)

	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: waited %s for %s", ErrLocked, s.lockTimeout, s.lockPath)
		}

		return nil, fmt.Errorf("locking manifest: %w", err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.lockPath)
	}

	s.logger.Debug("manifest locked", slog.String("lock", s.lockPath))

	return fl.Unlock, nil
}

// Update runs fn on the current Tracker under the lock and persists the
// result. Nothing is written when fn returns an error.
func (s *Store) Update(ctx context.Context, fn func(*Tracker) error) (*Tracker, error) {
	unlock, err := s.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock() //nolint:errcheck // best-effort release on return

	t, err := s.Load()
	if err != nil {
		return nil, err
	}

	if err := fn(t); err != nil {
		return nil, err
	}

	if err := s.Save(t); err != nil {
		return nil, err
	}

	return t, nil
}

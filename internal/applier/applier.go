// Package applier executes pending migrations from the manifest in ledger
// order and records the outcome locally and in the target database.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aqasim81/pgledger/internal/audit"
	"github.com/aqasim81/pgledger/internal/executor"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/migration"
	"github.com/aqasim81/pgledger/internal/version"
)

// DefaultPreviewLines is how many SQL lines a dry run shows per migration.
const DefaultPreviewLines = 10

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPreview   = "preview"
)

// ProgressEvent is emitted for each migration processed.
type ProgressEvent struct {
	Migration *migration.Migration
	Status    string
	Duration  time.Duration
	Error     error
}

// Recorder persists audit rows in the target database.
type Recorder interface {
	EnsureTable(ctx context.Context) error
	Record(ctx context.Context, e audit.Entry) error
}

// LockFunc takes a database-side lock for the duration of a run and
// returns the function releasing it.
type LockFunc func(ctx context.Context) (release func(context.Context) error, err error)

// Options controls an apply run.
type Options struct {
	// Target, when set, limits the run to migrations at or below this version.
	Target string
	DryRun bool
	// Force continues past failed migrations instead of stopping.
	Force bool
}

// Failure pairs a migration with the error that stopped it.
type Failure struct {
	Migration *migration.Migration
	Err       error
}

// Preview is the head of a pending migration's SQL shown by a dry run.
type Preview struct {
	Migration *migration.Migration
	Lines     []string
	Truncated bool
}

// Result summarizes an apply run.
type Result struct {
	Succeeded      []*migration.Migration
	Failed         []Failure
	Previews       []Preview
	Warnings       []string
	CurrentVersion string
	State          manifest.DatabaseState
}

// Partial reports whether some migrations succeeded while others failed.
func (r *Result) Partial() bool {
	return len(r.Succeeded) > 0 && len(r.Failed) > 0
}

// Applier runs pending migrations through an Executor.
type Applier struct {
	store        *manifest.Store
	exec         executor.Executor
	recorder     Recorder
	logger       *slog.Logger
	onProgress   func(ProgressEvent)
	previewLines int
	now          func() time.Time
	lock         LockFunc
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) { a.logger = l }
}

// WithProgressCallback sets a function called for each migration processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(a *Applier) { a.onProgress = fn }
}

// WithPreviewLines sets how many lines of SQL a dry run shows.
func WithPreviewLines(n int) Option {
	return func(a *Applier) { a.previewLines = n }
}

// WithClock overrides the time source used for appliedAt.
func WithClock(fn func() time.Time) Option {
	return func(a *Applier) { a.now = fn }
}

// WithAdvisoryLock makes Apply hold a database-side lock while executing.
func WithAdvisoryLock(fn LockFunc) Option {
	return func(a *Applier) { a.lock = fn }
}

// New creates an Applier.
func New(store *manifest.Store, exec executor.Executor, recorder Recorder, opts ...Option) *Applier {
	a := &Applier{
		store:        store,
		exec:         exec,
		recorder:     recorder,
		previewLines: DefaultPreviewLines,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}

	if a.previewLines <= 0 {
		a.previewLines = DefaultPreviewLines
	}

	return a
}

// Apply executes pending migrations in ledger order while holding the
// manifest lock. A failure stops the run unless opts.Force is set. The
// manifest is saved after every successful migration and once more at the
// end with the final version and database state, also when nothing is
// pending. A dry run returns previews and changes nothing, not even the
// audit table.
func (a *Applier) Apply(ctx context.Context, opts Options) (*Result, error) {
	unlock, err := a.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock() //nolint:errcheck // best-effort release on return

	t, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	pending, err := t.Pending(opts.Target)
	if err != nil {
		return nil, err
	}

	result := &Result{CurrentVersion: t.CurrentVersion, State: t.DatabaseState}

	if opts.DryRun {
		for _, m := range pending {
			result.Previews = append(result.Previews, a.preview(m))
			a.fireProgress(ProgressEvent{Migration: m, Status: StatusPreview})
		}

		return result, nil
	}

	if a.lock != nil {
		release, err := a.lock(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring database lock: %w", err)
		}
		defer release(context.WithoutCancel(ctx)) //nolint:errcheck // best-effort release on return
	}

	if err := a.recorder.EnsureTable(ctx); err != nil {
		return nil, err
	}

	if len(pending) == 0 {
		a.logger.Info("no pending migrations", slog.String("current_version", t.CurrentVersion))
	}

	runErr := a.run(ctx, t, pending, opts, result)

	if len(result.Failed) == 0 {
		t.DatabaseState = manifest.StateClean
	} else {
		t.DatabaseState = manifest.StateDrift
	}

	if err := a.store.Save(t); err != nil {
		return result, errors.Join(runErr, err)
	}

	result.CurrentVersion = t.CurrentVersion
	result.State = t.DatabaseState

	a.logger.Info("apply finished",
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("failed", len(result.Failed)),
		slog.String("current_version", t.CurrentVersion),
		slog.String("state", string(t.DatabaseState)),
	)

	return result, runErr
}

// run executes each candidate and returns only errors that abort the run
// outright: cancellation and manifest persistence failures.
func (a *Applier) run(
	ctx context.Context,
	t *manifest.Tracker,
	pending []*migration.Migration,
	opts Options,
	result *Result,
) error {
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("apply interrupted before %s: %w", m.ID, err)
		}

		err := a.applyOne(ctx, m, result)

		if bumpErr := a.bumpVersion(t, m.Version); bumpErr != nil {
			return bumpErr
		}

		if err != nil {
			result.Failed = append(result.Failed, Failure{Migration: m, Err: err})

			if !opts.Force {
				return nil
			}

			continue
		}

		if err := a.store.Save(t); err != nil {
			return fmt.Errorf("saving manifest after %s: %w", m.ID, err)
		}
	}

	return nil
}

// applyOne executes a single migration and records it. An audit failure
// after a successful execution is kept as a warning; the migration still
// counts as applied.
func (a *Applier) applyOne(ctx context.Context, m *migration.Migration, result *Result) error {
	log := a.logger.With(slog.String("migration", m.ID), slog.String("version", m.Version))

	if !m.ChecksumValid() {
		err := fmt.Errorf("%w: %s", ErrChecksumMismatch, m.ID)
		a.fireProgress(ProgressEvent{Migration: m, Status: StatusFailed, Error: err})
		log.Error("refusing to apply modified migration")

		return err
	}

	a.fireProgress(ProgressEvent{Migration: m, Status: StatusStarting})
	log.Info("applying migration", slog.String("executor", a.exec.Name()))

	start := time.Now()
	res, err := a.exec.Execute(ctx, m.SQL)
	duration := time.Since(start)

	if err != nil {
		a.fireProgress(ProgressEvent{Migration: m, Status: StatusFailed, Duration: duration, Error: err})
		log.Error("migration failed", slog.Any("error", err))

		return fmt.Errorf("executing migration %s: %w", m.ID, err)
	}

	if res != nil {
		duration = res.Duration
	}

	appliedAt := a.now().UTC()

	if err := a.recorder.Record(ctx, audit.NewEntry(m, appliedAt, duration)); err != nil {
		warning := fmt.Sprintf("migration %s applied but audit row not written: %v", m.ID, err)
		result.Warnings = append(result.Warnings, warning)
		log.Warn("audit record failed", slog.Any("error", err))
	}

	m.MarkApplied(appliedAt)
	result.Succeeded = append(result.Succeeded, m)

	a.fireProgress(ProgressEvent{Migration: m, Status: StatusCompleted, Duration: duration})
	log.Info("migration applied", slog.Duration("duration", duration))

	return nil
}

// bumpVersion moves CurrentVersion to the attempted version without ever
// lowering it. A run limited by a target below the newest migration
// therefore leaves CurrentVersion where it was.
func (a *Applier) bumpVersion(t *manifest.Tracker, attempted string) error {
	v, err := version.Max(t.CurrentVersion, attempted)
	if err != nil {
		return fmt.Errorf("updating current version: %w", err)
	}

	t.CurrentVersion = v

	return nil
}

func (a *Applier) preview(m *migration.Migration) Preview {
	lines := strings.Split(strings.TrimRight(m.SQL, "\n"), "\n")

	p := Preview{Migration: m, Lines: lines}
	if len(lines) > a.previewLines {
		p.Lines = lines[:a.previewLines]
		p.Truncated = true
	}

	return p
}

func (a *Applier) fireProgress(event ProgressEvent) {
	if a.onProgress != nil {
		a.onProgress(event)
	}
}

// RollbackOptions describes a rollback request.
type RollbackOptions struct {
	Steps     int
	ToVersion string
	DryRun    bool
	Force     bool
}

// Rollback always fails with ErrRollbackNotImplemented. Nothing is read or
// changed.
func (a *Applier) Rollback(_ context.Context, opts RollbackOptions) error {
	if opts.ToVersion != "" {
		return fmt.Errorf("%w: requested rollback to version %s", ErrRollbackNotImplemented, opts.ToVersion)
	}

	return fmt.Errorf("%w: requested rollback of %d step(s)", ErrRollbackNotImplemented, opts.Steps)
}

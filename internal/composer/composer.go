// Package composer creates new migrations: it assigns the next version,
// writes the SQL file and appends the record to the manifest.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aqasim81/pgledger/internal/drift"
	"github.com/aqasim81/pgledger/internal/hazard"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/migration"
	"github.com/aqasim81/pgledger/internal/parser"
	"github.com/aqasim81/pgledger/internal/project"
	"github.com/aqasim81/pgledger/internal/version"
)

// CreateOptions selects where a migration's SQL comes from. FromChanges
// wins over SQL; Template forces the annotated placeholder. With none of
// them set the placeholder is used as well.
type CreateOptions struct {
	Type        migration.Type
	SQL         string
	RollbackSQL string
	FromChanges []drift.Change
	Template    bool
}

// Created is the outcome of Create.
type Created struct {
	Migration *migration.Migration
	Path      string
	// Warnings lists SQL the local parser could not read. They never block creation.
	Warnings []string
	// Hazards lists statements that lock, rewrite or destroy live tables.
	Hazards []hazard.Hazard
}

// Composer creates migrations for one project.
type Composer struct {
	migrationsDir string
	store         *manifest.Store
	logger        *slog.Logger
	now           func() time.Time
	token         func() string
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// WithClock overrides the time source used for ids and timestamps.
func WithClock(fn func() time.Time) Option {
	return func(c *Composer) { c.now = fn }
}

// WithTokenSource overrides the random suffix of generated ids.
func WithTokenSource(fn func() string) Option {
	return func(c *Composer) { c.token = fn }
}

// New creates a Composer writing SQL files into the project's migrations directory.
func New(pc project.Context, store *manifest.Store, opts ...Option) *Composer {
	c := &Composer{
		migrationsDir: pc.MigrationsDir,
		store:         store,
		now:           time.Now,
		token:         migration.RandomToken,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	return c
}

// Create builds a migration at the next patch version, writes its SQL file
// and appends it to the manifest under the manifest lock. If the manifest
// cannot be saved the SQL file is removed again.
func (c *Composer) Create(ctx context.Context, description string, opts CreateOptions) (*Created, error) {
	unlock, err := c.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock() //nolint:errcheck // best-effort release on return

	t, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	next, err := version.Increment(t.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("computing next version: %w", err)
	}

	sql, rollback, typ, fromTemplate := c.compose(description, opts)

	now := c.now()

	m, err := migration.New(migration.Params{
		ID:          migration.IDWithToken(now, c.token()),
		Timestamp:   now,
		Version:     next,
		Description: description,
		Type:        typ,
		SQL:         sql,
		RollbackSQL: rollback,
	})
	if err != nil {
		return nil, err
	}

	created := &Created{Migration: m}
	if !fromTemplate {
		created.Warnings = inspect(m)

		if hs, err := hazard.Inspect(m.SQL); err == nil {
			created.Hazards = hs
		}
	}

	for _, w := range created.Warnings {
		c.logger.Warn("migration SQL did not parse", slog.String("migration", m.ID), slog.String("detail", w))
	}

	for _, h := range created.Hazards {
		c.logger.Warn("risky statement in migration",
			slog.String("migration", m.ID),
			slog.String("check", h.Check),
			slog.String("level", h.Level.String()),
			slog.String("table", h.Table),
		)
	}

	path, err := migration.WriteFile(c.migrationsDir, m)
	if err != nil {
		return nil, err
	}

	created.Path = path

	if err := t.Append(m); err != nil {
		return nil, errors.Join(err, removeFile(path))
	}

	if err := c.store.Save(t); err != nil {
		return nil, errors.Join(fmt.Errorf("saving manifest: %w", err), removeFile(path))
	}

	c.logger.Info("migration created",
		slog.String("id", m.ID),
		slog.String("version", m.Version),
		slog.String("type", string(m.Type)),
		slog.String("file", path),
	)

	return created, nil
}

func (c *Composer) compose(description string, opts CreateOptions) (sql, rollback string, typ migration.Type, fromTemplate bool) {
	typ = opts.Type

	switch {
	case len(opts.FromChanges) > 0:
		sql, rollback = fromChanges(opts.FromChanges)
		if typ == "" {
			typ = migration.TypeAutomated
		}
	case opts.Template || strings.TrimSpace(opts.SQL) == "":
		sql = template(strings.TrimSpace(description))
		rollback = opts.RollbackSQL
		fromTemplate = true
	default:
		sql = opts.SQL
		rollback = opts.RollbackSQL
	}

	if typ == "" {
		typ = migration.TypeManual
	}

	return sql, rollback, typ, fromTemplate
}

// inspect runs the local parser over both scripts and reports what it rejects.
func inspect(m *migration.Migration) []string {
	var warnings []string

	if s, err := parser.Inspect(m.SQL); err != nil {
		warnings = append(warnings, fmt.Sprintf("forward SQL: %v", err))
	} else if s.Statements == 0 {
		warnings = append(warnings, "forward SQL contains no statements")
	}

	if strings.TrimSpace(m.RollbackSQL) != "" {
		if _, err := parser.Inspect(m.RollbackSQL); err != nil {
			warnings = append(warnings, fmt.Sprintf("rollback SQL: %v", err))
		}
	}

	return warnings
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return nil
}

package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/snapshot"
)

// Source captures the live schema.
type Source interface {
	Capture(ctx context.Context) (*snapshot.Snapshot, error)
}

// Detector compares the live schema with the accepted baseline and records
// the outcome in the manifest.
type Detector struct {
	source   Source
	baseline *snapshot.Store
	manifest *manifest.Store
	logger   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// NewDetector wires a Detector from its collaborators.
func NewDetector(source Source, baseline *snapshot.Store, store *manifest.Store, opts ...Option) *Detector {
	d := &Detector{
		source:   source,
		baseline: baseline,
		manifest: store,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}

	return d
}

// ScanOptions controls a scan.
type ScanOptions struct {
	IgnoreMinor bool
}

// Report is the outcome of a scan.
type Report struct {
	Changes []Change `json:"changes"`
	// Baselined is set when no baseline existed and the current capture
	// became the baseline without diffing.
	Baselined bool                   `json:"baselined"`
	Current   *snapshot.Snapshot     `json:"-"`
	State     manifest.DatabaseState `json:"state"`
}

// Scan captures the live schema and diffs it against the baseline. When no
// baseline exists the capture is stored as the baseline and no changes are
// reported. The manifest's database state is set to drift when changes are
// found and clean otherwise. The baseline itself is left in place; call
// Accept once the changes have been captured in a migration.
func (d *Detector) Scan(ctx context.Context, opts ScanOptions) (*Report, error) {
	current, err := d.source.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing schema: %w", err)
	}

	report := &Report{Current: current, Changes: []Change{}}

	previous, err := d.baseline.Load()

	switch {
	case errors.Is(err, snapshot.ErrNoBaseline):
		if err := d.baseline.Save(current); err != nil {
			return nil, err
		}

		d.logger.Info("schema baseline recorded",
			slog.String("path", d.baseline.Path()),
			slog.Int("columns", len(current.Columns)),
		)

		report.Baselined = true
	case err != nil:
		return nil, err
	default:
		report.Changes = Compare(previous, current, opts.IgnoreMinor)
	}

	report.State = manifest.StateClean
	if len(report.Changes) > 0 {
		report.State = manifest.StateDrift
	}

	if _, err := d.manifest.Update(ctx, func(t *manifest.Tracker) error {
		t.DatabaseState = report.State
		return nil
	}); err != nil {
		return nil, fmt.Errorf("recording database state: %w", err)
	}

	d.logger.Info("drift scan complete",
		slog.Int("changes", len(report.Changes)),
		slog.String("state", string(report.State)),
	)

	return report, nil
}

// Accept makes snap the new baseline and marks the database clean.
func (d *Detector) Accept(ctx context.Context, snap *snapshot.Snapshot) error {
	if err := d.baseline.Save(snap); err != nil {
		return err
	}

	if _, err := d.manifest.Update(ctx, func(t *manifest.Tracker) error {
		t.DatabaseState = manifest.StateClean
		return nil
	}); err != nil {
		return fmt.Errorf("recording database state: %w", err)
	}

	return nil
}

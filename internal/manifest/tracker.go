package manifest

import (
	"fmt"
	"time"

	"github.com/aqasim81/pgledger/internal/migration"
	"github.com/aqasim81/pgledger/internal/version"
)

// DatabaseState summarizes how the live database relates to the ledger.
type DatabaseState string

// Database states.
const (
	StateClean   DatabaseState = "clean"
	StateDrift   DatabaseState = "drift"
	StateUnknown DatabaseState = "unknown"
)

// Tracker is the ledger of every migration created for a project.
type Tracker struct {
	CurrentVersion string                 `json:"currentVersion"`
	Migrations     []*migration.Migration `json:"migrations"`
	LastSync       time.Time              `json:"lastSync"`
	DatabaseState  DatabaseState          `json:"databaseState"`
}

// NewTracker returns an empty ledger at the initial version.
func NewTracker() *Tracker {
	return &Tracker{
		CurrentVersion: version.Initial,
		Migrations:     []*migration.Migration{},
		DatabaseState:  StateUnknown,
	}
}

// Counts holds ledger totals.
type Counts struct {
	Total   int
	Applied int
	Pending int
}

// Counts tallies applied and pending migrations.
func (t *Tracker) Counts() Counts {
	c := Counts{Total: len(t.Migrations)}

	for _, m := range t.Migrations {
		if m.Applied {
			c.Applied++
		}
	}

	c.Pending = c.Total - c.Applied

	return c
}

// Pending returns unapplied migrations in ledger order. When target is
// non-empty only migrations whose version is at or below target are returned.
func (t *Tracker) Pending(target string) ([]*migration.Migration, error) {
	var limit *version.Version

	if target != "" {
		v, err := version.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parsing target version: %w", err)
		}

		limit = &v
	}

	var pending []*migration.Migration

	for _, m := range t.Migrations {
		if m.Applied {
			continue
		}

		if limit != nil {
			v, err := version.Parse(m.Version)
			if err != nil {
				return nil, fmt.Errorf("migration %s: %w", m.ID, err)
			}

			if v.Compare(*limit) > 0 {
				continue
			}
		}

		pending = append(pending, m)
	}

	return pending, nil
}

// Find returns the migration with the given id.
func (t *Tracker) Find(id string) (*migration.Migration, error) {
	for _, m := range t.Migrations {
		if m.ID == id {
			return m, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrMigrationNotFound, id)
}

// Append adds m to the ledger and raises CurrentVersion to its version.
func (t *Tracker) Append(m *migration.Migration) error {
	for _, existing := range t.Migrations {
		if existing.ID == m.ID {
			return fmt.Errorf("%w: duplicate id %s", migration.ErrInvalidMigration, m.ID)
		}
	}

	current, err := version.Max(t.CurrentVersion, m.Version)
	if err != nil {
		return err
	}

	t.Migrations = append(t.Migrations, m)
	t.CurrentVersion = current

	return nil
}

// validate checks a decoded tracker before it is handed to callers.
func (t *Tracker) validate() error {
	if _, err := version.Parse(t.CurrentVersion); err != nil {
		return fmt.Errorf("currentVersion: %w", err)
	}

	switch t.DatabaseState {
	case StateClean, StateDrift, StateUnknown:
	default:
		return fmt.Errorf("unknown databaseState %q", t.DatabaseState)
	}

	seen := make(map[string]struct{}, len(t.Migrations))

	for i, m := range t.Migrations {
		if m == nil {
			return fmt.Errorf("migration at index %d is null", i)
		}

		if err := m.Validate(); err != nil {
			return err
		}

		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate migration id %s", m.ID)
		}

		seen[m.ID] = struct{}{}
	}

	if t.Migrations == nil {
		t.Migrations = []*migration.Migration{}
	}

	return nil
}

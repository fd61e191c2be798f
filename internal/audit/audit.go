// Package audit records applied migrations in a table inside the target
// database, independent of the local manifest.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqasim81/pgledger/internal/executor"
	"github.com/aqasim81/pgledger/internal/migration"
)

// Entry is one row of the audit table.
type Entry struct {
	ID              string
	Version         string
	Description     string
	Type            string
	SQL             string
	Checksum        string
	AppliedAt       time.Time
	ExecutionTimeMs int64
}

// NewEntry builds the audit row for a migration applied at appliedAt.
func NewEntry(m *migration.Migration, appliedAt time.Time, took time.Duration) Entry {
	return Entry{
		ID:              m.ID,
		Version:         m.Version,
		Description:     m.Description,
		Type:            string(m.Type),
		SQL:             m.SQL,
		Checksum:        m.Checksum,
		AppliedAt:       appliedAt.UTC(),
		ExecutionTimeMs: took.Milliseconds(),
	}
}

// PoolRecorder writes audit rows over a pgx pool.
type PoolRecorder struct {
	pool *pgxpool.Pool
}

// NewPoolRecorder creates a PoolRecorder backed by pool.
func NewPoolRecorder(pool *pgxpool.Pool) *PoolRecorder {
	return &PoolRecorder{pool: pool}
}

// EnsureTable creates the audit table and its indexes if absent.
func (r *PoolRecorder) EnsureTable(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// Record upserts e keyed by migration id.
func (r *PoolRecorder) Record(ctx context.Context, e Entry) error {
	placeholders := make([]any, 8)
	for i := range placeholders {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(upsertSQL, placeholders...),
		e.ID, e.Version, e.Description, e.Type, e.SQL, e.Checksum, e.AppliedAt, e.ExecutionTimeMs,
	)
	if err != nil {
		return fmt.Errorf("%w: migration %s: %w", ErrRecordFailed, e.ID, err)
	}

	return nil
}

// List returns every audit row in application order.
func (r *PoolRecorder) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, version, description, type, sql, checksum, applied_at, execution_time_ms
		 FROM _pgledger_migrations
		 ORDER BY applied_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit rows: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		if scanErr := row.Scan(&e.ID, &e.Version, &e.Description, &e.Type, &e.SQL,
			&e.Checksum, &e.AppliedAt, &e.ExecutionTimeMs); scanErr != nil {
			return Entry{}, fmt.Errorf("scanning audit row: %w", scanErr)
		}

		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning audit rows: %w", err)
	}

	return entries, nil
}

// ExecRecorder writes audit rows by sending literal SQL through an
// Executor, so transports without a driver connection still keep the
// audit table current.
type ExecRecorder struct {
	exec executor.Executor
}

// NewExecRecorder creates an ExecRecorder that runs its SQL through exec.
func NewExecRecorder(exec executor.Executor) *ExecRecorder {
	return &ExecRecorder{exec: exec}
}

// EnsureTable creates the audit table and its indexes if absent.
func (r *ExecRecorder) EnsureTable(ctx context.Context) error {
	if _, err := r.exec.Execute(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// Record upserts e keyed by migration id.
func (r *ExecRecorder) Record(ctx context.Context, e Entry) error {
	if _, err := r.exec.Execute(ctx, InsertSQL(e)); err != nil {
		return fmt.Errorf("%w: migration %s: %w", ErrRecordFailed, e.ID, err)
	}

	return nil
}

// InsertSQL renders the upsert for e with every value inlined as a literal.
func InsertSQL(e Entry) string {
	return fmt.Sprintf(upsertSQL,
		Literal(e.ID),
		Literal(e.Version),
		Literal(e.Description),
		Literal(e.Type),
		Literal(e.SQL),
		Literal(e.Checksum),
		Literal(e.AppliedAt.UTC().Format(time.RFC3339Nano))+"::timestamptz",
		strconv.FormatInt(e.ExecutionTimeMs, 10),
	)
}

// Literal quotes s as a dollar-quoted string constant whose tag does not
// occur in s, so the value is taken verbatim whatever it contains.
func Literal(s string) string {
	tag := "$pgl$"

	for n := 1; strings.Index(s+tag, tag) != len(s); n++ {
		tag = "$pgl" + strconv.Itoa(n) + "$"
	}

	return tag + s + tag
}

// Package snapshot captures the column-level shape of a live schema and
// persists the last accepted capture as the project's baseline.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aqasim81/pgledger/internal/audit"
	"github.com/aqasim81/pgledger/internal/database"
)

// Column describes one table column as reported by information_schema.
type Column struct {
	Table       string  `json:"table"       db:"table_name"`
	Column      string  `json:"column"      db:"column_name"`
	DataType    string  `json:"dataType"    db:"data_type"`
	Nullable    bool    `json:"nullable"    db:"nullable"`
	DefaultExpr *string `json:"defaultExpr" db:"column_default"`
}

// Key identifies a column within a schema.
type Key struct {
	Table  string
	Column string
}

// Key returns the (table, column) identity of c.
func (c Column) Key() Key {
	return Key{Table: c.Table, Column: c.Column}
}

// Snapshot is an ordered capture of a schema's columns.
type Snapshot struct {
	CapturedAt time.Time `json:"capturedAt"`
	Schema     string    `json:"schema"`
	Columns    []Column  `json:"columns"`
}

// Index maps every column by its key.
func (s *Snapshot) Index() map[Key]Column {
	idx := make(map[Key]Column, len(s.Columns))
	for _, c := range s.Columns {
		idx[c.Key()] = c
	}

	return idx
}

// Tables returns the set of table names present in the snapshot.
func (s *Snapshot) Tables() map[string]struct{} {
	tables := make(map[string]struct{})
	for _, c := range s.Columns {
		tables[c.Table] = struct{}{}
	}

	return tables
}

// USER-DEFINED and ARRAY columns report their concrete type through udt_name.
const columnsQuery = `
SELECT c.table_name,
       c.column_name,
       CASE WHEN c.data_type IN ('USER-DEFINED', 'ARRAY') THEN c.udt_name ELSE c.data_type END AS data_type,
       (c.is_nullable = 'YES') AS nullable,
       c.column_default
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1
  AND t.table_type = 'BASE TABLE'
  AND c.table_name <> $2
ORDER BY c.table_name, c.ordinal_position`

// Capturer runs the introspection query against one schema.
type Capturer struct {
	db     *sqlx.DB
	schema string
	now    func() time.Time
	logger *slog.Logger
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithClock overrides the capture timestamp source.
func WithClock(fn func() time.Time) CapturerOption {
	return func(c *Capturer) { c.now = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) CapturerOption {
	return func(c *Capturer) { c.logger = l }
}

// NewCapturer wraps db for introspection of schema.
func NewCapturer(db *sql.DB, schema string, opts ...CapturerOption) *Capturer {
	c := &Capturer{
		db:     sqlx.NewDb(db, "pgx"),
		schema: schema,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	return c
}

// Capture returns the current columns of the schema, ordered by table and
// ordinal position. The pgledger audit table is never included.
func (c *Capturer) Capture(ctx context.Context) (*Snapshot, error) {
	if err := c.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}

	columns := []Column{}
	if err := c.db.SelectContext(ctx, &columns, columnsQuery, c.schema, audit.TableName); err != nil {
		return nil, fmt.Errorf("introspecting schema %s: %w", c.schema, err)
	}

	c.logger.Debug("schema captured",
		slog.String("schema", c.schema),
		slog.Int("columns", len(columns)),
	)

	return &Snapshot{
		CapturedAt: c.now().UTC(),
		Schema:     c.schema,
		Columns:    columns,
	}, nil
}

package audit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/audit"
	"github.com/aqasim81/pgledger/internal/executor"
	"github.com/aqasim81/pgledger/internal/migration"
)

type recordingExecutor struct {
	scripts []string
	err     error
}

func (r *recordingExecutor) Name() string { return "fake" }

func (r *recordingExecutor) Execute(_ context.Context, sql string) (*executor.Result, error) {
	r.scripts = append(r.scripts, sql)
	if r.err != nil {
		return nil, r.err
	}

	return &executor.Result{}, nil
}

var appliedAt = time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC)

func sampleEntry() audit.Entry {
	return audit.Entry{
		ID:              "20261018110000_0badcafe",
		Version:         "1.0.4",
		Description:     "add author's note",
		Type:            "manual",
		SQL:             "ALTER TABLE posts ADD COLUMN note text DEFAULT 'n/a';",
		Checksum:        "abc123",
		AppliedAt:       appliedAt,
		ExecutionTimeMs: 42,
	}
}

func TestNewEntry_copiesMigrationFields(t *testing.T) {
	t.Parallel()

	m, err := migration.New(migration.Params{
		ID:          "20261018110000_0badcafe",
		Timestamp:   appliedAt,
		Version:     "1.0.4",
		Description: "add note",
		Type:        migration.TypeAutomated,
		SQL:         "SELECT 1;",
	})
	require.NoError(t, err)

	e := audit.NewEntry(m, appliedAt.In(time.FixedZone("CEST", 2*3600)), 1500*time.Millisecond)

	assert.Equal(t, m.ID, e.ID)
	assert.Equal(t, "automated", e.Type)
	assert.Equal(t, m.Checksum, e.Checksum)
	assert.Equal(t, time.UTC, e.AppliedAt.Location())
	assert.Equal(t, int64(1500), e.ExecutionTimeMs)
}

func TestLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello", want: "$pgl$hello$pgl$"},
		{name: "single quotes kept verbatim", in: "it's", want: "$pgl$it's$pgl$"},
		{name: "empty", in: "", want: "$pgl$$pgl$"},
		{name: "contains tag", in: "a $pgl$ b", want: "$pgl1$a $pgl$ b$pgl1$"},
		{name: "ends with tag prefix", in: "x$pgl", want: "$pgl1$x$pgl$pgl1$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, audit.Literal(tt.in))
		})
	}
}

func TestInsertSQL_inlinesEveryValue(t *testing.T) {
	t.Parallel()

	sql := audit.InsertSQL(sampleEntry())

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO _pgledger_migrations"))
	assert.Contains(t, sql, "$pgl$20261018110000_0badcafe$pgl$")
	assert.Contains(t, sql, "$pgl$add author's note$pgl$")
	assert.Contains(t, sql, "$pgl$2026-10-18T11:00:00Z$pgl$::timestamptz")
	assert.Contains(t, sql, ", 42)")
	assert.Contains(t, sql, "ON CONFLICT (id) DO UPDATE")
	assert.NotContains(t, sql, "%!")
}

func TestExecRecorder_sendsDDLAndInsert(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	r := audit.NewExecRecorder(exec)

	require.NoError(t, r.EnsureTable(context.Background()))
	require.NoError(t, r.Record(context.Background(), sampleEntry()))

	require.Len(t, exec.scripts, 2)
	assert.Contains(t, exec.scripts[0], "CREATE TABLE IF NOT EXISTS _pgledger_migrations")
	assert.Contains(t, exec.scripts[0], "idx_pgledger_migrations_version")
	assert.Contains(t, exec.scripts[0], "idx_pgledger_migrations_applied_at")
	assert.Contains(t, exec.scripts[1], "INSERT INTO _pgledger_migrations")
}

func TestExecRecorder_errorsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := audit.NewExecRecorder(&recordingExecutor{err: boom})

	err := r.EnsureTable(context.Background())
	require.ErrorIs(t, err, audit.ErrTableCreation)
	require.ErrorIs(t, err, boom)

	err = r.Record(context.Background(), sampleEntry())
	require.ErrorIs(t, err, audit.ErrRecordFailed)
	require.ErrorIs(t, err, boom)
}

func TestNewPoolRecorder_returnsNonNil(t *testing.T) {
	t.Parallel()

	// nil pool is accepted at construction time; errors surface on use.
	assert.NotNil(t, audit.NewPoolRecorder(nil))
}

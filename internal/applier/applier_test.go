package applier_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/applier"
	"github.com/aqasim81/pgledger/internal/audit"
	"github.com/aqasim81/pgledger/internal/executor"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/migration"
	"github.com/aqasim81/pgledger/internal/project"
)

var created = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// fakeExecutor fails any script containing one of the failOn substrings.
type fakeExecutor struct {
	failOn []string
	ran    []string
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Execute(_ context.Context, sql string) (*executor.Result, error) {
	f.ran = append(f.ran, sql)

	for _, s := range f.failOn {
		if strings.Contains(sql, s) {
			return nil, &executor.ExecutionError{Strategy: "fake", ExitCode: 3, Stderr: "ERROR: boom"}
		}
	}

	return &executor.Result{Duration: 5 * time.Millisecond}, nil
}

type fakeRecorder struct {
	ensureErr error
	recordErr error
	ensured   int
	entries   []audit.Entry
}

func (f *fakeRecorder) EnsureTable(context.Context) error {
	f.ensured++
	return f.ensureErr
}

func (f *fakeRecorder) Record(_ context.Context, e audit.Entry) error {
	if f.recordErr != nil {
		return f.recordErr
	}

	f.entries = append(f.entries, e)

	return nil
}

type fixture struct {
	store    *manifest.Store
	exec     *fakeExecutor
	recorder *fakeRecorder
}

func newFixture(t *testing.T, sqls ...string) *fixture {
	t.Helper()

	pc, err := project.New(t.TempDir(), "")
	require.NoError(t, err)

	f := &fixture{
		store:    manifest.NewStore(pc),
		exec:     &fakeExecutor{},
		recorder: &fakeRecorder{},
	}

	_, err = f.store.Update(context.Background(), func(tr *manifest.Tracker) error {
		for i, sql := range sqls {
			m, err := migration.New(migration.Params{
				ID:          migration.IDWithToken(created.Add(time.Duration(i)*time.Second), fmt.Sprintf("%08d", i)),
				Timestamp:   created,
				Version:     fmt.Sprintf("1.0.%d", i+1),
				Description: fmt.Sprintf("step %d", i+1),
				Type:        migration.TypeManual,
				SQL:         sql,
			})
			if err != nil {
				return err
			}

			if err := tr.Append(m); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) applier(opts ...applier.Option) *applier.Applier {
	opts = append([]applier.Option{applier.WithClock(func() time.Time { return created.Add(time.Hour) })}, opts...)
	return applier.New(f.store, f.exec, f.recorder, opts...)
}

func (f *fixture) load(t *testing.T) *manifest.Tracker {
	t.Helper()

	tr, err := f.store.Load()
	require.NoError(t, err)

	return tr
}

func TestApply_allSucceed_marksAppliedAndClean(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "CREATE TABLE a (id INT);", "CREATE TABLE b (id INT);")

	res, err := f.applier().Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	assert.Len(t, res.Succeeded, 2)
	assert.Empty(t, res.Failed)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "1.0.2", res.CurrentVersion)
	assert.Equal(t, manifest.StateClean, res.State)

	tr := f.load(t)
	assert.Equal(t, "1.0.2", tr.CurrentVersion)
	assert.Equal(t, manifest.StateClean, tr.DatabaseState)

	for _, m := range tr.Migrations {
		assert.True(t, m.Applied)
		require.NotNil(t, m.AppliedAt)
		assert.Equal(t, created.Add(time.Hour), *m.AppliedAt)
	}

	assert.Equal(t, 1, f.recorder.ensured)
	require.Len(t, f.recorder.entries, 2)
	assert.Equal(t, tr.Migrations[0].ID, f.recorder.entries[0].ID)
	assert.Equal(t, int64(5), f.recorder.entries[0].ExecutionTimeMs)
}

func TestApply_firstFailsWithoutForce_stops(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "CREATE TABLE broken (;", "CREATE TABLE b (id INT);")
	f.exec.failOn = []string{"broken"}

	res, err := f.applier().Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, executor.ErrExecutionFailed)
	assert.Len(t, f.exec.ran, 1, "second migration must not be attempted")
	assert.Equal(t, manifest.StateDrift, res.State)

	tr := f.load(t)
	assert.False(t, tr.Migrations[0].Applied)
	assert.False(t, tr.Migrations[1].Applied)
	assert.Equal(t, manifest.StateDrift, tr.DatabaseState)
	assert.Empty(t, f.recorder.entries)
}

func TestApply_force_continuesPastFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "CREATE TABLE broken (;", "CREATE TABLE b (id INT);")
	f.exec.failOn = []string{"broken"}

	res, err := f.applier().Apply(context.Background(), applier.Options{Force: true})
	require.NoError(t, err)

	require.Len(t, res.Succeeded, 1)
	require.Len(t, res.Failed, 1)
	assert.True(t, res.Partial())
	assert.Equal(t, "1.0.2", res.Succeeded[0].Version)
	assert.Equal(t, manifest.StateDrift, res.State)

	tr := f.load(t)
	assert.False(t, tr.Migrations[0].Applied)
	assert.True(t, tr.Migrations[1].Applied)
}

func TestApply_target_limitsCandidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;", "SELECT 2;", "SELECT 3;")

	res, err := f.applier().Apply(context.Background(), applier.Options{Target: "1.0.2"})
	require.NoError(t, err)

	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, []string{"SELECT 1;", "SELECT 2;"}, f.exec.ran)
	assert.Equal(t, "1.0.3", res.CurrentVersion, "current version never moves backwards")

	tr := f.load(t)
	assert.False(t, tr.Migrations[2].Applied)
}

func TestApply_noPending_ensuresAuditTableAndMarksClean(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.store.Update(context.Background(), func(tr *manifest.Tracker) error {
		tr.DatabaseState = manifest.StateDrift
		return nil
	})
	require.NoError(t, err)

	res, err := f.applier().Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	assert.Empty(t, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Empty(t, f.exec.ran)
	assert.Equal(t, 1, f.recorder.ensured)
	assert.Equal(t, manifest.StateClean, res.State)
	assert.Equal(t, "1.0.0", res.CurrentVersion)

	after := f.load(t)
	assert.Equal(t, manifest.StateClean, after.DatabaseState)
}

func TestApply_noPending_dryRunChangesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	before := f.load(t)

	res, err := f.applier().Apply(context.Background(), applier.Options{DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, res.Previews)
	assert.Equal(t, 0, f.recorder.ensured)
	assert.Equal(t, before, f.load(t))
}

func TestApply_dryRun_previewsWithoutSideEffects(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("SELECT 1;\n", 6)
	f := newFixture(t, long, "SELECT 2;")
	before := f.load(t)

	var events []applier.ProgressEvent

	res, err := f.applier(
		applier.WithPreviewLines(4),
		applier.WithProgressCallback(func(ev applier.ProgressEvent) { events = append(events, ev) }),
	).Apply(context.Background(), applier.Options{DryRun: true})
	require.NoError(t, err)

	require.Len(t, res.Previews, 2)
	assert.Len(t, res.Previews[0].Lines, 4)
	assert.True(t, res.Previews[0].Truncated)
	assert.Equal(t, []string{"SELECT 2;"}, res.Previews[1].Lines)
	assert.False(t, res.Previews[1].Truncated)

	assert.Empty(t, f.exec.ran)
	assert.Equal(t, 0, f.recorder.ensured)
	require.Len(t, events, 2)
	assert.Equal(t, applier.StatusPreview, events[0].Status)

	after := f.load(t)
	assert.Equal(t, before, after)
}

func TestApply_auditFailure_stillApplied(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")
	f.recorder.recordErr = errors.New("permission denied for table _pgledger_migrations")

	res, err := f.applier().Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	require.Len(t, res.Succeeded, 1)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "audit row not written")
	assert.True(t, f.load(t).Migrations[0].Applied)
}

func TestApply_ensureTableFails_nothingExecuted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")
	f.recorder.ensureErr = audit.ErrTableCreation

	_, err := f.applier().Apply(context.Background(), applier.Options{})
	require.ErrorIs(t, err, audit.ErrTableCreation)

	assert.Empty(t, f.exec.ran)
	assert.False(t, f.load(t).Migrations[0].Applied)
}

func TestApply_tamperedSQL_refused(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")

	_, err := f.store.Update(context.Background(), func(tr *manifest.Tracker) error {
		tr.Migrations[0].SQL = "DROP TABLE users;"
		return nil
	})
	require.NoError(t, err)

	res, err := f.applier().Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, applier.ErrChecksumMismatch)
	assert.Empty(t, f.exec.ran)
}

func TestApply_progressEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;", "SELECT broken;")
	f.exec.failOn = []string{"broken"}

	var statuses []string

	_, err := f.applier(applier.WithProgressCallback(func(ev applier.ProgressEvent) {
		statuses = append(statuses, ev.Status)
	})).Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		applier.StatusStarting, applier.StatusCompleted,
		applier.StatusStarting, applier.StatusFailed,
	}, statuses)
}

func TestApply_advisoryLock_heldAndReleased(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")

	var acquired, released bool

	lock := func(context.Context) (func(context.Context) error, error) {
		acquired = true
		return func(context.Context) error { released = true; return nil }, nil
	}

	_, err := f.applier(applier.WithAdvisoryLock(lock)).Apply(context.Background(), applier.Options{})
	require.NoError(t, err)

	assert.True(t, acquired)
	assert.True(t, released)
}

func TestApply_advisoryLockBusy_returnsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")
	busy := errors.New("lock held")

	lock := func(context.Context) (func(context.Context) error, error) { return nil, busy }

	_, err := f.applier(applier.WithAdvisoryLock(lock)).Apply(context.Background(), applier.Options{})
	require.ErrorIs(t, err, busy)
	assert.Empty(t, f.exec.ran)
}

func TestApply_invalidTarget_returnsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")

	_, err := f.applier().Apply(context.Background(), applier.Options{Target: "one"})
	require.Error(t, err)
}

func TestRollback_alwaysNotImplemented(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "SELECT 1;")
	a := f.applier()

	tests := []applier.RollbackOptions{
		{Steps: 1},
		{Steps: 3, DryRun: true},
		{ToVersion: "1.0.0", Force: true},
	}

	for _, opts := range tests {
		err := a.Rollback(context.Background(), opts)
		require.ErrorIs(t, err, applier.ErrRollbackNotImplemented)
	}
}

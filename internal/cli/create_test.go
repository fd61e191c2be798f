package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/migration"
	"github.com/aqasim81/pgledger/internal/project"
	"github.com/aqasim81/pgledger/internal/snapshot"
)

var (
	usersID    = snapshot.Column{Table: "users", Column: "id", DataType: "integer"}
	usersEmail = snapshot.Column{Table: "users", Column: "email", DataType: "text", Nullable: true}
)

func loadTracker(t *testing.T) (*manifest.Tracker, project.Context) {
	t.Helper()

	pc, store, err := projectStore(AppConfig)
	require.NoError(t, err)

	tr, err := store.Load()
	require.NoError(t, err)

	return tr, pc
}

func TestRunCreate_fromSQLFile(t *testing.T) { // not parallel: mutates global AppConfig
	useConfig(t, nil)

	dir := t.TempDir()
	sqlPath := writeFile(t, dir, "up.sql", "CREATE INDEX idx_users_email ON users (email);\n")
	downPath := writeFile(t, dir, "down.sql", "DROP INDEX idx_users_email;\n")

	cmd, buf := newCmd(t, addCreateFlags, "sql-file", sqlPath, "rollback-file", downPath)

	require.NoError(t, runCreate(cmd, []string{"add", "email", "index"}))
	assert.Contains(t, buf.String(), "version 1.0.1, manual")
	assert.Contains(t, buf.String(), "add_email_index.sql")
	assert.Contains(t, buf.String(), "1 risky statement(s)")

	tr, pc := loadTracker(t)
	require.Len(t, tr.Migrations, 1)

	m := tr.Migrations[0]
	assert.Equal(t, "add email index", m.Description)
	assert.Equal(t, "DROP INDEX idx_users_email;\n", m.RollbackSQL)
	assert.Equal(t, migration.FileOK, migration.VerifyFile(pc.MigrationsDir, m))
}

func TestRunCreate_templateByDefault(t *testing.T) { // not parallel: mutates global AppConfig
	useConfig(t, nil)

	cmd, _ := newCmd(t, addCreateFlags, "type", "external")

	require.NoError(t, runCreate(cmd, []string{"vendor patch"}))

	tr, _ := loadTracker(t)
	require.Len(t, tr.Migrations, 1)
	assert.Equal(t, migration.TypeExternal, tr.Migrations[0].Type)
	assert.Contains(t, tr.Migrations[0].SQL, "Write the forward SQL")
}

func TestRunCreate_invalidInputs(t *testing.T) { // not parallel: mutates global AppConfig
	useConfig(t, nil)

	sqlPath := writeFile(t, t.TempDir(), "up.sql", "SELECT 1;")

	tests := []struct {
		name    string
		flags   []string
		wantErr error
	}{
		{"template and sql file", []string{"template", "true", "sql-file", sqlPath}, errConflictingSources},
		{"auto-detect and template", []string{"auto-detect", "true", "template", "true"}, errConflictingSources},
		{"bad type", []string{"type", "robot"}, migration.ErrInvalidMigration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := newCmd(t, addCreateFlags, tt.flags...)
			require.ErrorIs(t, runCreate(cmd, []string{"x"}), tt.wantErr)
		})
	}

	cmd, _ := newCmd(t, addCreateFlags, "sql-file", "/nonexistent/up.sql")
	require.Error(t, runCreate(cmd, []string{"x"}))

	tr, _ := loadTracker(t)
	assert.Empty(t, tr.Migrations)
}

func TestRunCreate_autoDetect_buildsMigrationAndRebaselines(t *testing.T) { // not parallel: mutates globals
	cfg := useConfig(t, nil)

	pc, _, err := projectStore(cfg)
	require.NoError(t, err)

	baseline := snapshot.NewStore(pc)
	require.NoError(t, baseline.Save(&snapshot.Snapshot{Schema: "public", Columns: []snapshot.Column{usersID}}))

	useSource(t, &fakeSource{snap: &snapshot.Snapshot{Schema: "public", Columns: []snapshot.Column{usersID, usersEmail}}})

	cmd, buf := newCmd(t, addCreateFlags, "auto-detect", "true")
	require.NoError(t, runCreate(cmd, []string{"sync users"}))
	assert.Contains(t, buf.String(), "1 change(s) detected")
	assert.Contains(t, buf.String(), "automated")

	tr, _ := loadTracker(t)
	require.Len(t, tr.Migrations, 1)
	assert.Equal(t, migration.TypeAutomated, tr.Migrations[0].Type)
	assert.Contains(t, tr.Migrations[0].SQL, `ADD COLUMN "email" text`)
	assert.Equal(t, manifest.StateClean, tr.DatabaseState)

	moved, err := baseline.Load()
	require.NoError(t, err)
	assert.Len(t, moved.Columns, 2)
}

func TestRunCreate_autoDetect_noDrift_createsNothing(t *testing.T) { // not parallel: mutates globals
	cfg := useConfig(t, nil)

	pc, _, err := projectStore(cfg)
	require.NoError(t, err)

	current := &snapshot.Snapshot{Schema: "public", Columns: []snapshot.Column{usersID}}
	require.NoError(t, snapshot.NewStore(pc).Save(current))
	useSource(t, &fakeSource{snap: current})

	cmd, buf := newCmd(t, addCreateFlags, "auto-detect", "true")
	require.NoError(t, runCreate(cmd, []string{"nothing"}))
	assert.Contains(t, buf.String(), "Nothing to create.")

	tr, _ := loadTracker(t)
	assert.Empty(t, tr.Migrations)
}

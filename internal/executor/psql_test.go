package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/database"
	"github.com/aqasim81/pgledger/internal/executor"
)

// fakePsql writes an executable shell script standing in for psql.
// The script body may refer to $DIR, the directory holding the script.
func fakePsql(t *testing.T, body string) (path, dir string) {
	t.Helper()

	dir = t.TempDir()
	path = filepath.Join(dir, "psql")
	script := "#!/bin/sh\nDIR=" + dir + "\n" + body + "\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path, dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestPsqlExecute_success_pipesSQLOnStdin(t *testing.T) {
	t.Parallel()

	path, dir := fakePsql(t, `cat > "$DIR/stdin.sql"
printf '%s\n' "$@" > "$DIR/args.txt"
echo applied`)

	sql := "CREATE TABLE users (id INT);"
	exec := executor.NewPsql(path, "postgres://app@localhost/app")

	res, err := exec.Execute(context.Background(), sql)
	require.NoError(t, err)

	assert.Equal(t, "applied", res.Output)
	assert.Positive(t, res.Duration)

	got, err := os.ReadFile(filepath.Join(dir, "stdin.sql"))
	require.NoError(t, err)
	assert.Equal(t, sql, string(got))

	args := readLines(t, filepath.Join(dir, "args.txt"))
	assert.Contains(t, args, "ON_ERROR_STOP=1")
	assert.Contains(t, args, "--single-transaction")
	assert.Contains(t, args, "postgres://app@localhost/app")
	assert.Equal(t, []string{"-f", "-"}, args[len(args)-2:])
}

func TestPsqlExecute_concurrentIndex_skipsSingleTransaction(t *testing.T) {
	t.Parallel()

	path, dir := fakePsql(t, `cat > /dev/null
printf '%s\n' "$@" > "$DIR/args.txt"`)

	_, err := executor.NewPsql(path, "").Execute(context.Background(),
		"CREATE INDEX CONCURRENTLY idx_users_email ON users (email);")
	require.NoError(t, err)

	args := readLines(t, filepath.Join(dir, "args.txt"))
	assert.NotContains(t, args, "--single-transaction")
	assert.NotContains(t, args, "-d")
}

func TestPsqlExecute_sqlError_reportsSQLState(t *testing.T) {
	t.Parallel()

	path, _ := fakePsql(t, `cat > /dev/null
echo 'psql:<stdin>:1: ERROR:  42P01: relation "nope" does not exist' >&2
echo 'LOCATION:  parserOpenTable, parse_relation.c:1449' >&2
exit 3`)

	_, err := executor.NewPsql(path, "").Execute(context.Background(), "SELECT * FROM nope;")
	require.Error(t, err)
	require.ErrorIs(t, err, executor.ErrExecutionFailed)

	var execErr *executor.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "psql", execErr.Strategy)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, "42P01", execErr.Code)
	assert.False(t, execErr.TimedOut)
	assert.Contains(t, execErr.Error(), `relation "nope" does not exist`)
	assert.NotContains(t, execErr.Error(), "LOCATION")
}

func TestPsqlExecute_connectionFailure_wrapsConnectionError(t *testing.T) {
	t.Parallel()

	path, _ := fakePsql(t, `cat > /dev/null
echo 'psql: error: connection to server on socket failed' >&2
exit 2`)

	_, err := executor.NewPsql(path, "").Execute(context.Background(), "SELECT 1;")

	require.ErrorIs(t, err, executor.ErrExecutionFailed)
	require.ErrorIs(t, err, database.ErrConnectionFailed)
}

func TestPsqlExecute_timeout_marksTimedOut(t *testing.T) {
	t.Parallel()

	path, _ := fakePsql(t, `exec sleep 5`)

	exec := executor.NewPsql(path, "", executor.WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := exec.Execute(context.Background(), "SELECT 1;")

	var execErr *executor.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.TimedOut)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestPsqlExecute_missingBinary_returnsExecutionError(t *testing.T) {
	t.Parallel()

	exec := executor.NewPsql(filepath.Join(t.TempDir(), "no-such-psql"), "")

	_, err := exec.Execute(context.Background(), "SELECT 1;")

	var execErr *executor.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, -1, execErr.ExitCode)
	assert.Error(t, execErr.Err)
}

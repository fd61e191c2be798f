package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/config"
	"github.com/aqasim81/pgledger/internal/drift"
	"github.com/aqasim81/pgledger/internal/snapshot"
)

// useConfig installs a default configuration rooted in a temp project for
// the duration of the test. Callers must not run in parallel.
func useConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()

	cfg := config.New()
	cfg.ProjectDir = t.TempDir()

	if mutate != nil {
		mutate(cfg)
	}

	old := AppConfig
	AppConfig = cfg

	t.Cleanup(func() { AppConfig = old })

	return cfg
}

// newCmd builds a detached command with the given flag registration and
// sets flags from name/value pairs.
func newCmd(t *testing.T, add func(*cobra.Command), flags ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	buf := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	add(cmd)

	require.Zero(t, len(flags)%2, "flags come in name/value pairs")

	for i := 0; i < len(flags); i += 2 {
		require.NoError(t, cmd.Flags().Set(flags[i], flags[i+1]))
	}

	return cmd, buf
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

type fakeSource struct {
	snap *snapshot.Snapshot
	err  error
}

func (f *fakeSource) Capture(context.Context) (*snapshot.Snapshot, error) {
	return f.snap, f.err
}

// useSource replaces the database-backed schema source with src.
func useSource(t *testing.T, src drift.Source) {
	t.Helper()

	old := openSchemaSource
	openSchemaSource = func(context.Context, *config.Config, io.Writer) (drift.Source, func(), error) {
		return src, func() {}, nil
	}

	t.Cleanup(func() { openSchemaSource = old })
}

// fakePsql writes an executable shell script standing in for psql. The
// script fails with a syntax error whenever its stdin contains "boom".
func fakePsql(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	script := `#!/bin/sh
input=$(cat)
case "$input" in
  *boom*)
    echo 'ERROR:  42601: syntax error at or near "boom"' >&2
    exit 3
    ;;
esac
exit 0
`

	path := filepath.Join(dir, "psql")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) //nolint:gosec // test executable

	return path
}

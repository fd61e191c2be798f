package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/aqasim81/pgledger/internal/database"
	"github.com/aqasim81/pgledger/internal/parser"
)

// psqlExitConnection is psql's exit status when it cannot reach the server.
const psqlExitConnection = 2

var sqlStatePattern = regexp.MustCompile(`ERROR:\s+([0-9A-Z]{5}):`)

// psqlArgs returns the flags that make psql stop at the first error and
// report SQLSTATEs. A script is wrapped in a single transaction unless it
// contains statements that cannot run inside one.
func psqlArgs(singleTransaction bool) []string {
	args := []string{"-X", "-q", "-v", "ON_ERROR_STOP=1", "-v", "VERBOSITY=verbose"}
	if singleTransaction {
		args = append(args, "--single-transaction")
	}

	return args
}

func wantsTransaction(sql string, logger *slog.Logger) bool {
	concurrent, err := parser.ContainsConcurrentIndex(sql)
	if err != nil {
		logger.Debug("SQL did not parse locally; leaving validation to the server", slog.Any("error", err))
		return true
	}

	return !concurrent
}

// psqlFailure converts a psql run result into an *ExecutionError.
func psqlFailure(ctx context.Context, strategy string, exitCode int, stderr string, cause error) *ExecutionError {
	e := &ExecutionError{
		Strategy: strategy,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		TimedOut: timedOut(ctx),
		Err:      cause,
	}

	if m := sqlStatePattern.FindStringSubmatch(stderr); m != nil {
		e.Code = m[1]
	}

	if exitCode == psqlExitConnection && !e.TimedOut {
		e.Err = fmt.Errorf("%w: %w", database.ErrConnectionFailed, cause)
	}

	return e
}

// PsqlExecutor pipes SQL into a local psql client.
type PsqlExecutor struct {
	settings
	path    string
	url     string
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewPsql returns an executor that runs path (psql) against databaseURL.
// An empty databaseURL leaves connection parameters to libpq's PG*
// environment variables.
func NewPsql(path, databaseURL string, opts ...Option) *PsqlExecutor {
	if path == "" {
		path = "psql"
	}

	return &PsqlExecutor{
		settings: newSettings(opts),
		path:     path,
		url:      databaseURL,
		command:  exec.CommandContext,
	}
}

// Name returns the strategy name.
func (p *PsqlExecutor) Name() string {
	return StrategyPsql
}

// Execute runs sql through psql with ON_ERROR_STOP set. A non-zero exit,
// a missing binary and a timeout are all reported as *ExecutionError.
func (p *PsqlExecutor) Execute(ctx context.Context, sql string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := psqlArgs(wantsTransaction(sql, p.logger))
	if p.url != "" {
		args = append(args, "-d", p.url)
	}

	args = append(args, "-f", "-")

	cmd := p.command(ctx, p.path, args...)
	cmd.Stdin = strings.NewReader(sql)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.Debug("running psql", slog.String("path", p.path), slog.Int("bytes", len(sql)))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return nil, psqlFailure(ctx, StrategyPsql, exitCode, stderr.String(), err)
	}

	return &Result{Duration: duration, Output: strings.TrimSpace(stdout.String())}, nil
}

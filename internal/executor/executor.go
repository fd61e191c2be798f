// Package executor runs migration SQL against the target database through
// one of several transports.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Strategy names.
const (
	StrategyPsql   = "psql"
	StrategyDocker = "docker"
	StrategyDriver = "driver"
)

// DefaultTimeout bounds a single Execute call when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

// Executor runs a SQL script. Implementations must apply their own timeout
// and report failures as *ExecutionError.
type Executor interface {
	Name() string
	Execute(ctx context.Context, sql string) (*Result, error)
}

// Result describes a successful execution.
type Result struct {
	Duration time.Duration
	Output   string
}

// Options selects and configures a strategy.
type Options struct {
	Strategy    string
	DatabaseURL string
	Timeout     time.Duration
	Logger      *slog.Logger

	// psql
	PsqlPath string

	// docker
	Container         string
	ContainerUser     string
	ContainerDatabase string

	// driver
	Pool             *pgxpool.Pool
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// New builds the executor named by opts.Strategy.
func New(opts Options) (Executor, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Strategy {
	case StrategyPsql, "":
		return NewPsql(opts.PsqlPath, opts.DatabaseURL,
			WithTimeout(opts.Timeout),
			WithLogger(opts.Logger),
		), nil
	case StrategyDocker:
		return NewDocker(opts.Container, opts.ContainerUser, opts.ContainerDatabase,
			WithTimeout(opts.Timeout),
			WithLogger(opts.Logger),
		)
	case StrategyDriver:
		if opts.Pool == nil {
			return nil, errors.New("driver executor requires a connection pool")
		}

		return NewDriver(opts.Pool,
			WithTimeout(opts.Timeout),
			WithLogger(opts.Logger),
			WithLockTimeout(opts.LockTimeout),
			WithStatementTimeout(opts.StatementTimeout),
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}
}

// settings holds the options shared by every strategy.
type settings struct {
	timeout          time.Duration
	logger           *slog.Logger
	lockTimeout      time.Duration
	statementTimeout time.Duration
}

// Option configures a strategy.
type Option func(*settings)

// WithTimeout bounds each Execute call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithLockTimeout sets lock_timeout for driver transactions.
func WithLockTimeout(d time.Duration) Option {
	return func(s *settings) { s.lockTimeout = d }
}

// WithStatementTimeout sets statement_timeout for driver transactions.
func WithStatementTimeout(d time.Duration) Option {
	return func(s *settings) { s.statementTimeout = d }
}

func newSettings(opts []Option) settings {
	s := settings{timeout: DefaultTimeout}

	for _, opt := range opts {
		opt(&s)
	}

	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	return s
}

// timedOut reports whether ctx ended because its deadline passed.
func timedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

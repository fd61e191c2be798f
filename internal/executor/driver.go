package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DriverExecutor runs SQL over a pgx pool. Scripts run in one transaction
// with lock and statement timeouts, except scripts containing CREATE INDEX
// CONCURRENTLY, which run statement by statement.
type DriverExecutor struct {
	settings
	pool *pgxpool.Pool
}

// NewDriver returns an executor using pool.
func NewDriver(pool *pgxpool.Pool, opts ...Option) *DriverExecutor {
	return &DriverExecutor{settings: newSettings(opts), pool: pool}
}

// Name returns the strategy name.
func (d *DriverExecutor) Name() string {
	return StrategyDriver
}

// Pool exposes the pool so callers can share it for auditing and locking.
func (d *DriverExecutor) Pool() *pgxpool.Pool {
	return d.pool
}

// Execute runs sql and reports server errors with their SQLSTATE.
func (d *DriverExecutor) Execute(ctx context.Context, sql string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	transactional := wantsTransaction(sql, d.logger)

	d.logger.Debug("executing over driver", slog.Bool("transaction", transactional))

	start := time.Now()

	var err error
	if transactional {
		err = execInTransaction(ctx, d.pool, func(tx pgx.Tx) error {
			if err := setLocalTimeouts(ctx, tx, d.lockTimeout, d.statementTimeout); err != nil {
				return err
			}

			_, err := tx.Exec(ctx, sql)

			return err
		})
	} else {
		err = execStatements(ctx, d.pool, sql)
	}

	duration := time.Since(start)

	if err != nil {
		return nil, driverFailure(ctx, err)
	}

	return &Result{Duration: duration}, nil
}

func driverFailure(ctx context.Context, err error) *ExecutionError {
	e := &ExecutionError{
		Strategy: StrategyDriver,
		TimedOut: timedOut(ctx),
		Err:      err,
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.Code = pgErr.Code
		e.Stderr = pgErr.Message
	}

	return e
}

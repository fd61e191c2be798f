package executor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqasim81/pgledger/internal/parser"
)

// execInTransaction runs fn inside a transaction, committing on success.
func execInTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // rollback on committed tx returns ErrTxClosed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// execStatements runs each statement on its own outside any transaction, so
// CREATE INDEX CONCURRENTLY is not wrapped in the implicit transaction of a
// multi-statement query. Execution stops at the first failure.
func execStatements(ctx context.Context, pool *pgxpool.Pool, sql string) error {
	stmts, err := parser.Split(sql)
	if err != nil {
		return err
	}

	for i, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
	}

	return nil
}

package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// setLocalTimeouts bounds lock waits and statement runtime for the rest of
// tx. SET LOCAL keeps the values from leaking onto the pooled session after
// commit. Zero durations are left at the server default.
func setLocalTimeouts(ctx context.Context, tx pgx.Tx, lockTimeout, statementTimeout time.Duration) error {
	if lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("setting lock_timeout: %w", err)
		}
	}

	if statementTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", statementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("setting statement_timeout: %w", err)
		}
	}

	return nil
}

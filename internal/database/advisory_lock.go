package database

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey derives the session advisory lock key for a project from its
// audit table name, so every pgledger process targeting the same database
// contends on the same key.
func LockKey(table string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("pgledger:" + table))

	return int64(h.Sum64()) //nolint:gosec // wrap-around is fine for a lock key
}

// LockHandle wraps a dedicated pooled connection that holds a
// session-level advisory lock. Call Release to unlock and return
// the connection to the pool.
type LockHandle struct {
	conn *pgxpool.Conn
	key  int64
}

// TryAcquireLock attempts pg_try_advisory_lock(key) on a dedicated
// connection. It returns ErrLockNotAcquired when another session holds
// the key.
func TryAcquireLock(ctx context.Context, pool *pgxpool.Pool, key int64) (*LockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for advisory lock: %w", ErrConnectionFailed, err)
	}

	var acquired bool

	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired)
	if err != nil {
		conn.Release()

		return nil, fmt.Errorf("executing pg_try_advisory_lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return nil, fmt.Errorf("%w: key %d", ErrLockNotAcquired, key)
	}

	return &LockHandle{conn: conn, key: key}, nil
}

// Release unlocks the advisory lock and returns the connection to the pool.
// Safe to call multiple times.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	_, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.key)
	h.conn.Release()
	h.conn = nil

	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}

	return nil
}

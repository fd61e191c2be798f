package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/database"
)

func TestNewPool_invalidURL_returnsInvalidURLError(t *testing.T) {
	t.Parallel()

	_, err := database.NewPool(context.Background(), "not-a-valid-url")

	require.ErrorIs(t, err, database.ErrInvalidDatabaseURL)
}

func TestNewPool_emptyURL_returnsNoDatabaseURL(t *testing.T) {
	t.Parallel()

	_, err := database.NewPool(context.Background(), "")

	require.ErrorIs(t, err, database.ErrNoDatabaseURL)
}

func TestLockKey_stablePerTable(t *testing.T) {
	t.Parallel()

	a := database.LockKey("_pgledger_migrations")

	assert.Equal(t, a, database.LockKey("_pgledger_migrations"))
	assert.NotEqual(t, a, database.LockKey("other_table"))
}

func TestRelease_nilHandle_noop(t *testing.T) {
	t.Parallel()

	var h *database.LockHandle

	require.NoError(t, h.Release(context.Background()))
}

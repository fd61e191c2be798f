//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgledger/internal/database"
)

func TestNewPool_validConnection_succeeds(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	ctx := context.Background()

	var appName string

	require.NoError(t, pool.QueryRow(ctx, "SHOW application_name").Scan(&appName))
	assert.Equal(t, "pgledger", appName)
}

func TestOpenDB_sharesPool(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	db := database.OpenDB(pool)

	t.Cleanup(func() { _ = db.Close() })

	var n int

	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT 1").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNewPool_invalidURL_returnsError(t *testing.T) {
	t.Parallel()

	_, err := database.NewPool(context.Background(), "not-valid")
	require.ErrorIs(t, err, database.ErrInvalidDatabaseURL)
}

//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aqasim81/pgledger/internal/database"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/project"
)

const (
	postgresImage = "postgres:16-alpine"
	testDB        = "pgledger_test"
	testUser      = "pgledger"
	testPassword  = "pgledger"
)

// Postgres is a running PostgreSQL container.
type Postgres struct {
	DSN         string
	ContainerID string
}

// StartPostgres starts a PostgreSQL 16 container that is terminated when
// the test completes.
func StartPostgres(t *testing.T) Postgres {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return Postgres{
		DSN:         "postgres://" + testUser + ":" + testPassword + "@" + host + ":" + port.Port() + "/" + testDB + "?sslmode=disable",
		ContainerID: container.GetContainerID(),
	}
}

// SetupPostgresDSN starts a container and returns its connection string.
func SetupPostgresDSN(t *testing.T) string {
	t.Helper()

	return StartPostgres(t).DSN
}

// SetupPostgres starts a container and returns a pool connected to it.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	return connect(t, SetupPostgresDSN(t))
}

func connect(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()

	pool, err := database.NewPool(context.Background(), dsn)
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	return pool
}

// newProject returns a fresh project rooted in a temp directory.
func newProject(t *testing.T) (project.Context, *manifest.Store) {
	t.Helper()

	pc, err := project.New(t.TempDir(), "")
	require.NoError(t, err)

	return pc, manifest.NewStore(pc)
}

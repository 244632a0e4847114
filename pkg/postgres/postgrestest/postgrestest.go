// Package postgrestest starts throwaway Postgres containers for repository tests.
package postgrestest

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewClient starts a Postgres container, applies the migrations in migrationsPath
// and returns a client bound to it. The test is skipped in -short mode or without Docker.
func NewClient(t *testing.T, migrationsPath string) *postgres.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("usersync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	client, err := postgres.NewClient(ctx, dsn, migrationsPath)
	require.NoError(t, err, "Failed to connect and migrate")
	t.Cleanup(client.Close)

	return client
}

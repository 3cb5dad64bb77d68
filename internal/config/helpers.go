package config

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migration source for test databases
)

const (
	testDatabaseImage   = "postgres:16-alpine"
	testDatabaseName    = "rootline_test"
	testStartupTimeout  = 120 * time.Second
	readyLogOccurrences = 2 // postgres logs "ready" once during init, once on actual start
)

// TestDatabase bundles the container and connection an integration test needs
// to clean up. Callers terminate both via t.Cleanup. DSN lets packages with
// their own pool wrapper open a second connection to the same database.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
	DSN        string
}

// SetupTestDatabase starts a throwaway Postgres container, applies the full
// migration set and hands back an open connection. Integration tests across
// packages share this so they all run against the real schema.
//
// Callers guard with testing.Short() and register cleanup themselves:
//
//	testDB := config.SetupTestDatabase(ctx, t)
//	t.Cleanup(func() {
//		_ = testDB.Connection.Close()
//		_ = testcontainers.TerminateContainer(testDB.Container)
//	})
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	container, err := postgres.Run(ctx,
		testDatabaseImage,
		postgres.WithDatabase(testDatabaseName),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(readyLogOccurrences).
				WithStartupTimeout(testStartupTimeout),
		),
	)
	require.NoError(t, err, "start postgres container")
	require.NotNil(t, container, "postgres container is nil")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "resolve container connection string")

	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "open database connection")

	if err := RunTestMigrations(conn); err != nil {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(container)

		t.Fatalf("apply migrations: %v", err)
	}

	return &TestDatabase{Container: container, Connection: conn, DSN: dsn}
}

// RunTestMigrations applies the migrations/ directory to db via a file://
// source, so tests always exercise the same SQL the deployed migrator ships.
// The relative path assumes the calling package sits two levels below the
// repository root (internal/storage, internal/api, internal/intake all do).
// ErrNoChange is not a failure: the schema was already current.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

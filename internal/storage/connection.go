// Package storage provides the PostgreSQL persistence layer: the research
// repository backing the engine, the API key stores and the shared
// connection pool.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	// Registers the postgres driver with database/sql.
	_ "github.com/lib/pq"

	"github.com/rootline-io/rootline/internal/config"
)

const (
	// connectTimeout bounds the initial connectivity probe at startup.
	connectTimeout = 10 * time.Second

	// healthCheckTimeout bounds a single readiness ping.
	healthCheckTimeout = 5 * time.Second
)

// ErrNoDatabaseConnection is returned when a store is constructed or used
// without a live connection.
var ErrNoDatabaseConnection = errors.New("no database connection")

// Connection wraps the SQL connection pool with configured limits and a
// readiness probe. All stores share one Connection; its lifetime is managed
// by the process entry point, not by individual stores.
type Connection struct {
	db     *sql.DB
	cfg    *Config
	logger *slog.Logger
}

// NewConnection opens a PostgreSQL connection pool, applies the configured
// pool limits and verifies connectivity before returning.
func NewConnection(cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, ErrNoDatabaseConnection
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With(slog.String("component", "storage"))

	logger.Info("Database connection established",
		slog.String("database_url", cfg.MaskDatabaseURL()),
		slog.Int("max_open_conns", cfg.MaxOpenConns))

	return &Connection{db: db, cfg: cfg, logger: logger}, nil
}

// DB exposes the underlying pool for components that need it directly, such
// as the migration runner.
func (c *Connection) DB() *sql.DB { return c.db }

// QueryContext runs a query returning rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// ExecContext runs a statement without returning rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// HealthCheck verifies the database is reachable within the probe timeout.
// Used by readiness endpoints and monitoring.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return ErrNoDatabaseConnection
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	return c.db.Close()
}

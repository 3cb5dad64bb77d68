package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const pingTimeout = 10 * time.Second

type (
	// migrator is the command surface main dispatches on.
	migrator interface {
		Up() error
		Down() error
		Status() error
		Version() error
		Drop() error
		Close() error
	}

	// Migrator applies the embedded migration scripts to a PostgreSQL
	// database through golang-migrate. It owns the database connection;
	// Close releases it.
	Migrator struct {
		logger   *slog.Logger
		fsys     fs.FS
		manifest *manifest
		migrate  *migrate.Migrate
		db       *sql.DB
	}

	// migrateLog adapts golang-migrate's logger callbacks onto slog.
	migrateLog struct {
		logger *slog.Logger
	}
)

var (
	_ migrator       = (*Migrator)(nil)
	_ migrate.Logger = (*migrateLog)(nil)
)

// newMigrator dials the database and wires a Migrator over the embedded
// migration scripts.
func newMigrator(databaseURL, table string, logger *slog.Logger) (*Migrator, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	mig, err := newMigratorWithFS(embeddedSQL, db, table, logger)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return mig, nil
}

// newMigratorWithFS wires a Migrator over an explicit script filesystem
// and an already-open connection. Tests inject broken script sets here.
// On success the Migrator takes ownership of db.
func newMigratorWithFS(fsys fs.FS, db *sql.DB, table string, logger *slog.Logger) (*Migrator, error) {
	man, err := loadManifest(fsys)
	if err != nil {
		return nil, fmt.Errorf("load migration manifest: %w", err)
	}

	logger.Info("Migration scripts loaded",
		slog.Int("scripts", len(man.files)),
		slog.Int("max_version", man.maxVersion()),
		slog.String("fingerprint", man.Fingerprint()),
	)

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	m.Log = &migrateLog{logger: logger}

	return &Migrator{
		logger:   logger,
		fsys:     fsys,
		manifest: man,
		migrate:  m,
		db:       db,
	}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	if err := m.manifest.verify(m.fsys); err != nil {
		return err
	}

	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("Schema already up to date")

		return nil
	}

	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	current, _, _, err := m.state()
	if err != nil {
		return err
	}

	m.logger.Info("Migrations applied", slog.Int("version", current))

	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.manifest.verify(m.fsys); err != nil {
		return err
	}

	err := m.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("Nothing to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}

	current, _, applied, err := m.state()
	if err != nil {
		return err
	}

	if !applied {
		m.logger.Info("Rolled back to empty schema")

		return nil
	}

	m.logger.Info("Migration rolled back", slog.Int("version", current))

	return nil
}

// Status prints the schema version, the embedded script range and the
// pending count to stdout.
func (m *Migrator) Status() error {
	current, dirty, applied, err := m.state()
	if err != nil {
		return err
	}

	highest := m.manifest.maxVersion()

	switch {
	case !applied:
		fmt.Println("Schema version: none")
	case dirty:
		fmt.Printf("Schema version: %d (dirty, manual repair needed)\n", current)
	default:
		fmt.Printf("Schema version: %d\n", current)
	}

	fmt.Printf("Embedded scripts: up to version %d\n", highest)

	switch {
	case current < highest:
		fmt.Printf("Pending: %d migration(s), run 'up' to apply\n", highest-current)
	case current > highest:
		fmt.Printf("Warning: schema version %d is newer than this binary supports\n", current)
	default:
		fmt.Println("Up to date")
	}

	return nil
}

// Version prints the current schema version to stdout.
func (m *Migrator) Version() error {
	current, dirty, applied, err := m.state()
	if err != nil {
		return err
	}

	if !applied {
		fmt.Println("No migrations applied")

		return nil
	}

	if dirty {
		fmt.Printf("%d (dirty)\n", current)

		return nil
	}

	fmt.Printf("%d\n", current)

	return nil
}

// Drop drops every table in the database, the version table included.
func (m *Migrator) Drop() error {
	m.logger.Warn("Dropping all tables")

	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}

	m.logger.Info("All tables dropped")

	return nil
}

// Close releases the migrate instance and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()

	return errors.Join(srcErr, dbErr, m.db.Close())
}

// state reads the version table. applied is false when no migration has
// run yet, which golang-migrate reports as ErrNilVersion.
func (m *Migrator) state() (current int, dirty, applied bool, err error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}

	if err != nil {
		return 0, false, false, fmt.Errorf("read schema version: %w", err)
	}

	return int(version), dirty, true, nil // #nosec G115 -- schema versions are small
}

func (l *migrateLog) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)),
		slog.String("component", "migrate"),
	)
}

func (l *migrateLog) Verbose() bool {
	return true
}

// Package main provides the Rootline schema migration tool.
//
// The migration scripts are embedded in the binary, so a deployment
// applies schema changes with the image it already ships: no mounted
// SQL directory, no drift between binary and schema. Scripts are
// checksummed at startup and re-verified before every state-changing
// command.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rootline-io/rootline/internal/config"
	"github.com/rootline-io/rootline/internal/storage"
)

const name = "rootline-migrate"

const defaultMigrationTable = "schema_migrations"

func main() {
	showVersion := flag.Bool("version", false, "show version information")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, config.ServiceVersion)

		return
	}

	command := flag.Arg(0)

	switch command {
	case "up", "down", "status", "version", "drop":
	case "":
		usage()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	// Status lines go to stdout; logs stay on stderr so the output of
	// `status` and `version` pipes cleanly.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	databaseURL := config.GetEnvStr("DATABASE_URL", "")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	table := config.GetEnvStr("MIGRATION_TABLE", defaultMigrationTable)

	logger.Info("Connecting to database",
		slog.String("database_url", storage.NewConfig(databaseURL).MaskDatabaseURL()),
		slog.String("migration_table", table),
	)

	// Confirm destruction before dialing anything.
	if command == "drop" && !confirmDrop(os.Stdin) {
		fmt.Println("Cancelled.")

		return
	}

	os.Exit(run(command, databaseURL, table, logger))
}

// run owns the migrator lifecycle and returns the process exit code, so
// deferred cleanup still happens on failure paths.
func run(command, databaseURL, table string, logger *slog.Logger) int {
	mig, err := newMigrator(databaseURL, table, logger)
	if err != nil {
		logger.Error("Failed to initialize migrator", slog.String("error", err.Error()))

		return 1
	}

	defer func() {
		_ = mig.Close()
	}()

	if err := dispatch(command, mig); err != nil {
		logger.Error("Migration command failed",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)

		return 1
	}

	return 0
}

// dispatch maps a command name onto the migrator surface.
func dispatch(command string, mig migrator) error {
	switch command {
	case "up":
		return mig.Up()
	case "down":
		return mig.Down()
	case "status":
		return mig.Status()
	case "version":
		return mig.Version()
	case "drop":
		return mig.Drop()
	default:
		return fmt.Errorf("unknown command %q (want up, down, status, version or drop)", command)
	}
}

// confirmDrop requires the operator to type the full word before a drop
// proceeds. Anything else, including EOF, cancels.
func confirmDrop(r io.Reader) bool {
	fmt.Print("This drops every table in the database. Type 'yes' to continue: ")

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	return strings.TrimSpace(line) == "yes"
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s v%s - Rootline schema migration tool

Usage:
  %s [flags] <command>

Commands:
  up       apply every pending migration
  down     roll back the most recent migration
  status   show schema version, dirty flag and pending count
  version  print the current schema version
  drop     drop all tables (asks for confirmation)

Flags:
  -version  print tool version and exit

Environment:
  DATABASE_URL     PostgreSQL DSN (required)
  MIGRATION_TABLE  version tracking table (default %s)
`, name, config.ServiceVersion, name, defaultMigrationTable)
}

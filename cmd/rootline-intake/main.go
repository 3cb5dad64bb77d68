// Package main provides the Rootline job intake consumer.
//
// It reads research job requests from Kafka and starts them through the
// engine runner, sharing the persistence layer with the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rootline-io/rootline/internal/config"
	"github.com/rootline-io/rootline/internal/intake"
	"github.com/rootline-io/rootline/internal/research"
	"github.com/rootline-io/rootline/internal/sources"
	"github.com/rootline-io/rootline/internal/storage"
)

const name = "rootline-intake"

const defaultMaxConcurrentJobs = 4

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, config.ServiceVersion)
		os.Exit(0)
	}

	intakeConfig := intake.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: intakeConfig.LogLevel,
	}))

	logger.Info("Starting Rootline intake consumer",
		slog.String("service", name),
		slog.String("version", config.ServiceVersion),
	)

	if err := intakeConfig.Validate(); err != nil {
		logger.Error("Invalid intake configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Loaded intake configuration",
		slog.Any("brokers", intakeConfig.Brokers),
		slog.String("topic", intakeConfig.Topic),
		slog.String("group_id", intakeConfig.GroupID),
		slog.Duration("max_wait", intakeConfig.MaxWait),
		slog.Duration("create_retry_budget", intakeConfig.CreateRetryBudget),
	)

	repo, dbConn := buildRepository(logger)

	if dbConn != nil {
		defer func() {
			_ = dbConn.Close() // Ensure connection closes on normal shutdown
		}()
	}

	sourcesConfig, err := sources.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load source configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := sources.BuildRegistry(sourcesConfig, logger)

	logger.Info("Source registry initialized",
		slog.Any("sources", registry.Names()),
	)

	maxConcurrent := config.GetEnvInt("ROOTLINE_MAX_CONCURRENT_JOBS", defaultMaxConcurrentJobs)
	runner := research.NewRunner(repo, registry, maxConcurrent, logger)

	logger.Info("Research runner initialized",
		slog.Int("max_concurrent_jobs", maxConcurrent),
	)

	consumer := intake.NewConsumer(intakeConfig, repo, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerErrors := make(chan error, 1)

	go func() { consumerErrors <- consumer.Run(ctx) }()

	logger.Info("Intake consumer running",
		slog.String("topic", intakeConfig.Topic),
		slog.String("group_id", intakeConfig.GroupID),
	)

	var runErr error

	select {
	case runErr = <-consumerErrors:
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	if err := consumer.Close(); err != nil {
		logger.Error("Failed to close intake consumer", slog.String("error", err.Error()))
	}

	if runErr == nil {
		// Wait for the run loop to drain after the reader closed.
		runErr = <-consumerErrors
	}

	// Stop the runner so in-flight jobs persist a terminal status before
	// the store goes away.
	if err := runner.Close(); err != nil {
		logger.Error("Failed to close research runner", slog.String("error", err.Error()))
	}

	if runErr != nil {
		logger.Error("Intake consumer failed", slog.String("error", runErr.Error()))

		if dbConn != nil {
			_ = dbConn.Close()
		}
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Rootline intake consumer stopped")
}

// buildRepository wires the job store: PostgreSQL when DATABASE_URL is set,
// in-memory otherwise. In-memory intake only suits local smoke runs; the
// jobs it creates are invisible to a separately running API server.
func buildRepository(logger *slog.Logger) (research.Repository, *storage.Connection) {
	storageConfig := storage.LoadConfig()

	if err := storageConfig.Validate(); err != nil {
		if !errors.Is(err, storage.ErrDatabaseURLEmpty) {
			logger.Error("Invalid storage configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Warn("DATABASE_URL not set - using an in-memory store",
			slog.String("note", "Consumed jobs are lost on restart. Set DATABASE_URL for persistence."),
		)

		return storage.NewMemoryStore(), nil
	}

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	researchStore, err := storage.NewResearchStore(dbConn)
	if err != nil {
		logger.Error("Failed to initialize research store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Research store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
	)

	return researchStore, dbConn
}

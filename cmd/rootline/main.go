// Package main provides the Rootline ancestry research service.
//
// This is the main research engine service that turns customer research
// requests into calibrated ascendancy trees, correlating civil-index and
// genealogy-tree records across generations.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rootline-io/rootline/internal/api"
	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/config"
	"github.com/rootline-io/rootline/internal/research"
	"github.com/rootline-io/rootline/internal/sources"
	"github.com/rootline-io/rootline/internal/storage"
)

const name = "rootline"

const defaultMaxConcurrentJobs = 4

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, config.ServiceVersion)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Rootline service",
		slog.String("service", name),
		slog.String("version", config.ServiceVersion),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("client_rps", middlewareConfig.ClientRPS),
		slog.Int("client_burst", middlewareConfig.ClientBurst),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
		slog.Int("unauth_burst", middlewareConfig.UnAuthBurst),
	)

	repo, keyStore, dbConn := buildStores(logger)

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

	server := api.NewServer(serverConfig, repo, runner, registry, keyStore, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Rootline service stopped")
}

// buildStores wires the persistence layer: PostgreSQL when DATABASE_URL is
// set, in-memory demo mode otherwise. The returned connection is nil in demo
// mode.
func buildStores(logger *slog.Logger) (api.JobStore, storage.KeyStore, *storage.Connection) {
	authEnabled := config.GetEnvBool("ROOTLINE_AUTH_ENABLED", false)

	storageConfig := storage.LoadConfig()

	if err := storageConfig.Validate(); err != nil {
		if !errors.Is(err, storage.ErrDatabaseURLEmpty) {
			logger.Error("Invalid storage configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Warn("DATABASE_URL not set - using in-memory stores",
			slog.String("note", "Research jobs are lost on restart. Set DATABASE_URL for persistence."),
		)

		return storage.NewMemoryStore(), demoKeyStore(authEnabled, logger), nil
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
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	var keyStore storage.KeyStore

	if authEnabled {
		persistent, err := storage.NewPersistentKeyStore(dbConn)
		if err != nil {
			logger.Error("Failed to connect to persistent key store", slog.String("error", err.Error()))

			_ = dbConn.Close()
			//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
			os.Exit(1)
		}

		keyStore = persistent

		logger.Info("Client authentication enabled",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
		)
	} else {
		logger.Warn("Client authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set ROOTLINE_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	return researchStore, keyStore, dbConn
}

// demoKeyStore backs authentication in demo mode with one generated key.
// The key is logged at startup; it lives only as long as the process.
func demoKeyStore(authEnabled bool, logger *slog.Logger) storage.KeyStore {
	if !authEnabled {
		logger.Warn("Client authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set ROOTLINE_AUTH_ENABLED=true to enable API key authentication"),
		)

		return nil
	}

	key, err := storage.GenerateAPIKey("rootline-demo")
	if err != nil {
		logger.Error("Failed to generate demo API key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	keyStore := storage.NewInMemoryKeyStore()

	if err := keyStore.Add(context.Background(), &storage.APIKey{
		ID:          uuid.NewString(),
		Key:         key,
		ClientID:    "rootline-demo",
		Name:        "Demo key",
		Permissions: []string{"jobs:read", "jobs:write"},
		CreatedAt:   time.Now(),
		Active:      true,
	}); err != nil {
		logger.Error("Failed to seed demo API key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Demo API key generated",
		slog.String("api_key", key),
		slog.String("note", "In-memory key, regenerated on every start"),
	)

	return keyStore
}

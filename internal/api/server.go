// Package api provides the HTTP API server for the Rootline service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/sources"
	"github.com/rootline-io/rootline/internal/storage"
)

// Server is the admin HTTP server: route table, middleware chain and the
// graceful-shutdown sweep over everything it was handed.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	repo        JobStore
	runner      JobRunner
	registry    *sources.Registry
	keyStore    storage.KeyStore
	rateLimiter middleware.RateLimiter
}

// NewServer assembles the server. Configuration (ports, timeouts, CORS) comes
// in through cfg; collaborators are injected separately so tests can swap
// them. registry may be nil (health omits source status), keyStore nil
// (authentication off) and rateLimiter nil (rate limiting off) — the nil
// middleware collapse to pass-throughs.
func NewServer(
	cfg *ServerConfig,
	repo JobStore,
	runner JobRunner,
	registry *sources.Registry,
	keyStore storage.KeyStore,
	rateLimiter middleware.RateLimiter,
) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	server := &Server{
		logger:      logger,
		config:      cfg,
		repo:        repo,
		runner:      runner,
		registry:    registry,
		keyStore:    keyStore,
		rateLimiter: rateLimiter,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if keyStore == nil { // pragma: allowlist secret
		logger.Warn("KeyStore not configured - client authentication middleware disabled")
	} else {
		logger.Info("Client authentication middleware enabled")
	}

	if rateLimiter == nil {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	} else {
		logger.Info("Rate limiting middleware enabled")
	}

	// Outermost first. Correlation before recovery so panics log with an id;
	// auth and limiting ahead of the request logger so rejected spam never
	// reaches the log; CORS last, it only stamps headers.
	handler := middleware.Apply(mux,
		middleware.CorrelationID(),
		middleware.Recovery(logger),
		middleware.AuthenticateClient(keyStore, logger),
		middleware.RateLimit(rateLimiter, logger),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start runs the server until a SIGINT/SIGTERM arrives or ListenAndServe
// fails, then performs the graceful shutdown sweep.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting Rootline API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown drains the HTTP server, then closes the collaborators in
// dependency order: runner first so in-flight jobs persist a terminal status
// before their stores go away, then the stores, then the limiter.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeIfCloser("research runner", s.runner)
	s.closeIfCloser("job store", s.repo)
	s.closeIfCloser("API key store", s.keyStore)
	s.closeIfCloser("rate limiter", s.rateLimiter)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

// closeIfCloser closes a collaborator when it exposes io.Closer. Interfaces
// holding nil pointers still type-assert, so callers pass the fields as-is
// and the assertion handles the absent case.
func (s *Server) closeIfCloser(name string, subject any) {
	if subject == nil {
		return
	}

	closer, ok := subject.(io.Closer)
	if !ok {
		return
	}

	s.logger.Info("Closing " + name)

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info("Closed " + name)
}

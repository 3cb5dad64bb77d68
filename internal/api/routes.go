package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/config"
)

const (
	healthCheckTimeout     = 2 * time.Second
	contentTypeProblemJSON = "application/problem+json"
	contentTypeJSON        = "application/json"
)

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status      string         `json:"status"`
	ServiceName string         `json:"serviceName"`
	Version     string         `json:"version"`
	Uptime      string         `json:"uptime,omitempty"`
	Sources     []SourceHealth `json:"sources,omitempty"`
}

// SourceHealth reports one configured record source and whether its adapter
// is currently accepting traffic.
type SourceHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// setupRoutes registers every endpoint. Health probes are public (no API
// key); everything under /api/v1 goes through the full middleware chain.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.public(mux, "GET /ping", s.handlePing)
	s.public(mux, "GET /ready", s.handleReady)
	s.public(mux, "GET /health", s.handleHealth)
	s.public(mux, "/", s.handleNotFound)

	mux.HandleFunc("POST /api/v1/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/progress", s.handleJobProgress)
	mux.HandleFunc("GET /api/v1/jobs/{id}/ancestors", s.handleJobAncestors)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/ancestors/{asc}/research", s.handleReResearch)
	mux.HandleFunc("GET /api/v1/jobs/{id}/export/gedcom", s.handleExportGEDCOM)

	// Adapter credential endpoints
	mux.HandleFunc("GET /api/v1/settings", s.handleListSettings)
	mux.HandleFunc("PUT /api/v1/settings/{key}", s.handleUpdateSetting)
}

// public registers a route and exempts its path from authentication. Only
// health probes belong here; the auth middleware skips exactly the paths
// registered through this helper.
func (s *Server) public(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, handler)

	// Mux patterns may carry a "GET /path" method prefix, but the request
	// paths checked by the auth middleware never do.
	path := pattern
	if method, rest, found := strings.Cut(pattern, " "); found && !strings.HasPrefix(method, "/") {
		path = strings.TrimSpace(rest)
	}

	if path == "" {
		s.logger.Warn("Malformed public route pattern", slog.String("pattern", pattern))

		return
	}

	middleware.RegisterPublicEndpoint(path)
}

// writeText writes a small plain-text response, logging a failed write.
func (s *Server) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// handlePing is the liveness probe: the process is up and serving.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Rootline-Version", config.ServiceVersion)
	s.writeText(w, r, http.StatusOK, "pong")
}

// handleReady is the readiness probe: ready only when the job store answers
// a health check within the timeout. Without a store (degraded dev mode) the
// server reports ready so the zero-config path still serves traffic. A 503
// tells the orchestrator to route requests elsewhere until the store
// recovers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.logger.Warn("Job store not configured - readiness check disabled",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		)
		s.writeText(w, r, http.StatusOK, "ready")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.repo.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
		s.writeText(w, r, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	s.writeText(w, r, http.StatusOK, "ready")
}

// handleHealth reports service status, uptime and the availability of each
// configured record source.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "rootline",
		Version:     config.ServiceVersion,
		Uptime:      uptime,
	}

	if s.registry != nil {
		for _, source := range s.registry.All() {
			health.Sources = append(health.Sources, SourceHealth{
				Name:      source.Name(),
				Available: source.IsAvailable(),
			})
		}
	}

	data, err := json.Marshal(health)
	if err != nil {
		s.logger.Error("Failed to encode health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode health response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("X-Rootline-Version", config.ServiceVersion)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound answers unknown paths with a problem response.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType accepts "application/json" with or without parameters
// such as a charset.
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}

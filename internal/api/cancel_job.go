package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
)

// handleCancelJob handles POST /api/v1/jobs/{id}/cancel.
// Cancellation is cooperative: the engine notices at its next suspension
// point (adapter call, repository write or progress update) and marks the
// job failed with a cancellation reason. The 202 response acknowledges the
// request, not the completed cancellation.
//
// Response codes:
//   - 202 Accepted: Cancellation signalled to the running job
//   - 404 Not Found: No job with this id
//   - 409 Conflict: The job exists but no run is in flight
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	jobID := r.PathValue("id")

	if _, err := s.repo.GetResearchJob(ctx, jobID); err != nil {
		if errors.Is(err, research.ErrJobNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("No research job with this id"))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to load research job",
			"correlation_id", correlationID,
			"job_id", jobID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load research job"))

		return
	}

	if !s.runner.CancelJob(jobID) {
		WriteErrorResponse(w, r, s.logger, Conflict("No research run in flight for this job"))

		return
	}

	s.logger.Info("Research job cancellation requested",
		slog.String("correlation_id", correlationID),
		slog.String("job_id", jobID),
	)

	response := map[string]string{
		"id":     jobID,
		"status": "cancelling",
	}

	data, err := json.Marshal(response)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write(data)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
)

// handleGetJob handles GET /api/v1/jobs/{id}.
// Returns the full job row including terminal summary counts.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	jobID := r.PathValue("id")

	job, err := s.repo.GetResearchJob(ctx, jobID)
	if err != nil {
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

	data, err := json.Marshal(mapJobResponse(job))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal job response",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

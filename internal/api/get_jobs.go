package api

import (
	"encoding/json"
	"net/http"

	"github.com/rootline-io/rootline/internal/api/middleware"
)

// handleListJobs handles GET /api/v1/jobs.
// Returns all research jobs, most recent first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	jobs, err := s.repo.ListResearchJobs(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list research jobs",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to list research jobs"))

		return
	}

	summaries := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, mapJobResponse(job))
	}

	response := JobListResponse{
		Jobs:  summaries,
		Total: len(summaries),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal jobs response",
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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
)

// handleJobAncestors handles GET /api/v1/jobs/{id}/ancestors.
// Returns full ancestor rows including evidence chains, search logs and
// verification notes, ordered by ascendancy number.
func (s *Server) handleJobAncestors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	jobID := r.PathValue("id")

	// Verify the job exists so an unknown id reads as 404, not an empty list
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

	ancestors, err := s.repo.GetAncestors(ctx, jobID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load ancestors",
			"correlation_id", correlationID,
			"job_id", jobID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load ancestors"))

		return
	}

	sort.Slice(ancestors, func(i, j int) bool {
		return ancestors[i].AscNumber < ancestors[j].AscNumber
	})

	details := make([]AncestorDetail, 0, len(ancestors))
	for _, ancestor := range ancestors {
		details = append(details, mapAncestorDetail(ancestor))
	}

	response := AncestorListResponse{
		JobID:     jobID,
		Ancestors: details,
		Total:     len(details),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal ancestors response",
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

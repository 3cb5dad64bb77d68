package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
)

// handleJobProgress handles GET /api/v1/jobs/{id}/progress.
// Returns the lightweight polling view: job status plus one slim row per
// researched slot, ordered by ascendancy number. Designed for frequent
// polling, so evidence chains and search logs are left out.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
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

	summaries := make([]AncestorSummary, 0, len(ancestors))
	for _, ancestor := range ancestors {
		summaries = append(summaries, mapAncestorSummary(ancestor))
	}

	response := ProgressResponse{
		Status:          string(job.Status),
		ProgressMessage: job.ProgressMessage,
		ProgressCurrent: job.ProgressCurrent,
		ProgressTotal:   job.ProgressTotal,
		Generations:     job.Generations,
		Ancestors:       summaries,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal progress response",
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

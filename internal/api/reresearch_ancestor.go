package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
)

// handleReResearch handles POST /api/v1/jobs/{id}/ancestors/{asc}/research.
// Discards the subtree rooted at the slot and runs the pipeline again in
// the background. The slot's current tree attachment is rejected first so
// the re-run cannot pick the same identification again.
//
// Response codes:
//   - 202 Accepted: Re-research run started
//   - 400 Bad Request: Ascendancy number is not an integer
//   - 404 Not Found: No job with this id
//   - 409 Conflict: A run for this job is already in flight
//   - 422 Unprocessable Entity: Slot 1 (the subject) or a non-positive slot
func (s *Server) handleReResearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	jobID := r.PathValue("id")

	ascNumber, err := strconv.Atoi(r.PathValue("asc"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Ascendancy number must be an integer"))

		return
	}

	if ascNumber == 1 {
		WriteErrorResponse(w, r, s.logger,
			UnprocessableEntity("The subject slot is customer data and cannot be re-researched"))

		return
	}

	if ascNumber < 1 {
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity("Ascendancy number must be positive"))

		return
	}

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

	if err := s.runner.StartReResearch(jobID, ascNumber); err != nil {
		switch {
		case errors.Is(err, research.ErrJobAlreadyRunning):
			WriteErrorResponse(w, r, s.logger, Conflict("A research run for this job is already in flight"))
		case errors.Is(err, research.ErrRunnerClosed):
			WriteErrorResponse(w, r, s.logger, ServiceUnavailable("The research runner is shutting down"))
		default:
			s.logger.ErrorContext(ctx, "Failed to start re-research run",
				"correlation_id", correlationID,
				"job_id", jobID,
				"asc_number", ascNumber,
				"error", err.Error(),
			)
			WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to start re-research run"))
		}

		return
	}

	s.logger.Info("Re-research run started",
		slog.String("correlation_id", correlationID),
		slog.String("job_id", jobID),
		slog.Int("asc_number", ascNumber),
	)

	response := map[string]string{
		"id":        jobID,
		"ascNumber": strconv.Itoa(ascNumber),
		"status":    "re-researching",
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

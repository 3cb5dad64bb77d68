package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
)

// handleCreateJob handles research job creation.
// POST /api/v1/jobs - Validate, create and start a research job
//
// Request validation (returns 4xx):
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 400 Bad Request: Empty body or invalid JSON
//   - 422 Unprocessable Entity: Generations out of range or missing surname
//   - 409 Conflict: A job with the same id already exists
//
// Success response:
//   - 201 Created: Job persisted with customer anchors in place and the
//     background research run started
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	// Content-Type validation
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	req, problem := s.parseCreateJobRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	job, err := s.repo.CreateResearchJob(ctx, *req)
	if err != nil {
		switch {
		case errors.Is(err, research.ErrDuplicateJob):
			WriteErrorResponse(w, r, s.logger, Conflict("A job with this id already exists"))
		case errors.Is(err, research.ErrInvalidGenerations),
			errors.Is(err, research.ErrMissingSubjectName):
			WriteErrorResponse(w, r, s.logger, UnprocessableEntity(err.Error()))
		default:
			s.logger.ErrorContext(ctx, "Failed to create research job",
				"correlation_id", correlationID,
				"error", err.Error(),
			)
			WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to create research job"))
		}

		return
	}

	// Write customer anchors synchronously so the 201 body and any
	// immediate progress poll already show the subject and named parents.
	// The engine re-asserts anchors at run start, so this is idempotent.
	if err := research.PrepopulateAnchors(ctx, s.repo, job); err != nil {
		s.logger.ErrorContext(ctx, "Failed to prepopulate anchors",
			"correlation_id", correlationID,
			"job_id", job.ID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to prepare research job"))

		return
	}

	if err := s.runner.StartResearch(job.ID); err != nil {
		// The job row exists and is valid; a start failure here means the
		// server is shutting down or the id is already in flight.
		s.logger.ErrorContext(ctx, "Failed to start research run",
			"correlation_id", correlationID,
			"job_id", job.ID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Failed to start research run"))

		return
	}

	response := mapJobResponse(job)

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal job response",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(data)

	s.logger.Info("Research job created",
		slog.String("correlation_id", correlationID),
		slog.String("job_id", job.ID),
		slog.Int("generations", job.Generations),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// parseCreateJobRequest parses and validates the HTTP request body.
// Returns a domain job request or a ProblemDetail if parsing fails.
//
// Validates:
//   - Request size (optimization for known oversized requests)
//   - Empty body check (better UX than JSON decode error)
//   - JSON parsing
//   - Domain validation (generations range, subject surname)
func (s *Server) parseCreateJobRequest(r *http.Request) (*research.JobRequest, *ProblemDetail) {
	// Request size check (optimization: fail fast for known oversized requests)
	// Allow unknown sizes (-1) or 0 (empty, caught later)
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, PayloadTooLarge("Request body exceeds maximum size")
	}

	// Empty body check (better UX: specific error message)
	if r.ContentLength == 0 {
		return nil, BadRequest("Request body cannot be empty")
	}

	var payload CreateJobRequest

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&payload); err != nil {
		return nil, BadRequest("Invalid JSON: " + err.Error())
	}

	// The store assigns a UUID when the caller omits the job id, so the
	// request passes through unchanged.
	req := &research.JobRequest{
		JobID:       payload.JobID,
		Generations: payload.Generations,
		Subject:     mapSubjectInput(payload.Subject),
	}

	if err := req.Validate(); err != nil {
		return nil, UnprocessableEntity(err.Error())
	}

	return req, nil
}

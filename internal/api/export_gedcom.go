package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/export"
	"github.com/rootline-io/rootline/internal/research"
)

// handleExportGEDCOM handles GET /api/v1/jobs/{id}/export/gedcom.
// Renders the job's ancestor rows as GEDCOM 5.5.1 lineage-linked text.
// Works on any job state; exporting a running job simply snapshots the
// slots researched so far.
func (s *Server) handleExportGEDCOM(w http.ResponseWriter, r *http.Request) {
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

	data, result := export.GEDCOM(job, ancestors)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "rootline-"+jobID+".ged"))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write GEDCOM response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.Info("GEDCOM export generated",
		slog.String("correlation_id", correlationID),
		slog.String("job_id", jobID),
		slog.Int("individuals", result.Individuals),
		slog.Int("families", result.Families),
	)
}

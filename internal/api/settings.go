package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/rootline-io/rootline/internal/api/middleware"
	"github.com/rootline-io/rootline/internal/research"
	"github.com/rootline-io/rootline/internal/storage"
)

// Adapter credential keys served by the settings endpoints. The engine
// settings store accepts arbitrary keys; the HTTP surface stays closed so
// a typo cannot silently create a credential nothing reads.
//
//nolint:gochecknoglobals
var settingKeys = []string{
	"civil_index_api_key",
	"tree_api_key",
}

// handleListSettings handles GET /api/v1/settings.
// Returns every known credential key with its value masked. Unset keys are
// included with set=false so operators can see what is missing.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	entries := make([]SettingEntry, 0, len(settingKeys))

	for _, key := range settingKeys {
		value, err := s.repo.GetSetting(ctx, key)
		if err != nil {
			if errors.Is(err, research.ErrSettingNotFound) {
				entries = append(entries, SettingEntry{Key: key})

				continue
			}

			s.logger.ErrorContext(ctx, "Failed to read setting",
				"correlation_id", correlationID,
				"key", key,
				"error", err.Error(),
			)
			WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to read settings"))

			return
		}

		entries = append(entries, SettingEntry{
			Key:   key,
			Value: storage.MaskKey(value),
			Set:   true,
		})
	}

	data, err := json.Marshal(SettingsResponse{Settings: entries})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal settings response",
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

// handleUpdateSetting handles PUT /api/v1/settings/{key}.
// Stores an adapter credential. Values are write-only: reads always come
// back masked via handleListSettings.
//
// Response codes:
//   - 204 No Content: Value stored
//   - 400 Bad Request: Empty body or invalid JSON
//   - 404 Not Found: Unknown setting key
//   - 415 Unsupported Media Type: Content-Type must be application/json
func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	key := r.PathValue("key")

	if !slices.Contains(settingKeys, key) {
		WriteErrorResponse(w, r, s.logger, NotFound("Unknown setting key"))

		return
	}

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	if r.ContentLength == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("Request body cannot be empty"))

		return
	}

	var payload UpdateSettingRequest

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&payload); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON: "+err.Error()))

		return
	}

	if err := s.repo.SetSetting(ctx, key, payload.Value); err != nil {
		s.logger.ErrorContext(ctx, "Failed to store setting",
			"correlation_id", correlationID,
			"key", key,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to store setting"))

		return
	}

	s.logger.Info("Setting updated",
		slog.String("correlation_id", correlationID),
		slog.String("key", key),
	)

	w.WriteHeader(http.StatusNoContent)
}

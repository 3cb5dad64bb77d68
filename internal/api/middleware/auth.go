package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rootline-io/rootline/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// contentTypeProblemJSON is the media type for RFC 7807 problem responses.
const contentTypeProblemJSON = "application/problem+json"

// Authentication failures, from least to most specific. The two "invalid"
// cases share a sentinel so responses cannot be used to enumerate keys.
var (
	ErrMissingAPIKey  = errors.New("missing API key")
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrAPIKeyExpired  = errors.New("API key expired")
	ErrAPIKeyInactive = errors.New("API key inactive")
)

// AuthError pairs a sentinel with the human-readable detail that goes into
// the problem response.
type AuthError struct {
	Type    error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

func (e *AuthError) Unwrap() error { return e.Type }

// publicEndpoints lists the paths that skip authentication. Only liveness
// and health probes belong here; everything else requires a key.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint exempts a path from authentication. Called during
// route setup for health probes only — never for business endpoints.
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// AuthenticateClient validates the request's API key against the key store
// and, on success, attaches a ClientContext for downstream handlers.
// Registered public endpoints and CORS preflights pass through untouched
// (browsers send OPTIONS without credentials; the CORS layer answers them).
// Failures produce RFC 7807 responses.
func AuthenticateClient(store storage.KeyStore, logger *slog.Logger) Option {
	if store == nil {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingAPIKey, Message: "Missing API key"})

				return
			}

			authenticated, err := authenticateRequest(r.Context(), store, apiKey, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			ctx := SetClientContext(r.Context(), ClientContext{
				ClientID:    authenticated.ClientID,
				Name:        authenticated.Name,
				Permissions: authenticated.Permissions,
				KeyID:       authenticated.ID,
				AuthTime:    time.Now(),
			})

			logger.Info("API key authenticated",
				slog.String("client_id", authenticated.ClientID),
				slog.String("key_id", authenticated.ID),
				slog.String("key", storage.MaskKey(authenticated.Key)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey pulls the API key out of the request headers. X-Api-Key wins
// over Authorization: Bearer. Keys carrying newlines are rejected outright
// (header injection); surrounding whitespace is trimmed.
func extractAPIKey(r *http.Request) (string, bool) {
	candidate := r.Header.Get("X-Api-Key")

	if candidate == "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return "", false
		}

		candidate = strings.TrimPrefix(auth, "Bearer ")
	}

	if strings.ContainsAny(candidate, "\r\n") {
		return "", false
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}

	return candidate, true
}

// authenticateRequest resolves the key against the store and checks its
// lifecycle state. Format failures and unknown keys both come back as
// ErrInvalidAPIKey, and both still burn a bcrypt comparison so response
// timing does not reveal which case occurred.
func authenticateRequest(
	ctx context.Context,
	store storage.KeyStore,
	apiKey string,
	logger *slog.Logger,
) (*storage.APIKey, error) {
	rejected := func(failureType string, attrs ...slog.Attr) {
		attrs = append(attrs,
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", failureType))
		logger.LogAttrs(ctx, slog.LevelError, "authentication failed", attrs...)
	}

	parsedKey, err := storage.ParseAPIKey(apiKey)
	if err != nil {
		burnBcryptComparison()
		rejected("format_validation", slog.String("error", err.Error()))

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	foundKey, exists := store.FindByKey(ctx, parsedKey)
	if !exists {
		burnBcryptComparison()
		rejected("key_not_found")

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	keyAttrs := []slog.Attr{
		slog.String("key_id", foundKey.ID),
		slog.String("client_id", foundKey.ClientID),
	}

	if !foundKey.Active {
		rejected("key_inactive", keyAttrs...)

		return nil, &AuthError{Type: ErrAPIKeyInactive, Message: "API key is inactive"}
	}

	if foundKey.ExpiresAt != nil && time.Now().After(*foundKey.ExpiresAt) {
		rejected("key_expired", append(keyAttrs, slog.Time("expired_at", *foundKey.ExpiresAt))...)

		return nil, &AuthError{Type: ErrAPIKeyExpired, Message: "API key has expired"}
	}

	return foundKey, nil
}

// burnBcryptComparison equalizes the timing of rejection paths that never
// reach a real hash comparison.
func burnBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}

// writeAuthError logs the failure and renders it as an RFC 7807 problem.
// Inactive keys are 403 (the caller is known, the key is revoked); every
// other failure is 401.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	statusCode := http.StatusUnauthorized

	var authErr *AuthError
	if errors.As(err, &authErr) && errors.Is(authErr.Type, ErrAPIKeyInactive) {
		statusCode = http.StatusForbidden
	}

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	detail := err.Error()
	if writeErr := writeProblem(w, r, statusCode, detail, correlationID); writeErr != nil {
		logger.Error("failed to write problem response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("error", writeErr),
		)
		http.Error(w, detail, statusCode)
	}
}

// writeProblem renders a minimal RFC 7807 body. The middleware package keeps
// its own renderer so it does not import internal/api.
func writeProblem(w http.ResponseWriter, r *http.Request, statusCode int, detail, correlationID string) error {
	title := "Authentication Failed"

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(map[string]any{
		"type":          fmt.Sprintf("https://rootline.io/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	})
}

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery converts a handler panic into a logged 500 problem response, so
// one bad request cannot take the server down. It sits directly inside the
// correlation layer and outside everything else.
func Recovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}

				correlationID := GetCorrelationID(r.Context())

				logger.Error("HTTP request panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
					slog.Any("panic", recovered),
					slog.String("stack_trace", string(debug.Stack())),
				)

				// The panic detail stays in the log; the client gets a
				// generic message.
				err := writeProblem(w, r, http.StatusInternalServerError,
					"An unexpected error occurred while processing the request", correlationID)
				if err != nil {
					logger.Error("failed to write problem response",
						slog.Any("error", err),
						slog.String("correlation_id", correlationID),
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

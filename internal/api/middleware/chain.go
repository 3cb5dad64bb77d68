// Package middleware holds the HTTP middleware for the Rootline admin API:
// correlation ids, panic recovery, API-key authentication, tiered rate
// limiting, request logging and CORS.
package middleware

import "net/http"

// Option wraps a handler with one middleware layer.
type Option func(http.Handler) http.Handler

// Apply wraps handler in the given middleware, outermost first: the first
// option sees the request before any of the others. A typical chain runs
// correlation, recovery, auth, rate limiting, logging, CORS — recovery early
// so it catches panics from everything inside it, logging late so spam that
// auth or the limiter rejects never reaches the log.
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// passthrough is the no-op Option used when a middleware's dependency is not
// configured (nil key store, nil limiter).
func passthrough(next http.Handler) http.Handler {
	return next
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig abstracts the CORS settings supplied by the api package,
// avoiding an import cycle. The concrete type lives in internal/api/config.go.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS answers preflight requests and stamps the Access-Control-* headers on
// everything else. The method, header and max-age values never vary per
// request, so they are rendered once at construction; only the origin check
// runs per request.
func CORS(config CORSConfig) Option {
	origins := config.GetAllowedOrigins()
	wildcard := len(origins) == 1 && origins[0] == "*"

	methods := strings.Join(config.GetAllowedMethods(), ", ")
	headers := strings.Join(config.GetAllowedHeaders(), ", ")

	var maxAge string
	if config.GetMaxAge() > 0 {
		maxAge = strconv.Itoa(config.GetMaxAge())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := resolveOrigin(r, origins, wildcard); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if methods != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
			}

			if headers != "" {
				w.Header().Set("Access-Control-Allow-Headers", headers)
			}

			if maxAge != "" {
				w.Header().Set("Access-Control-Max-Age", maxAge)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveOrigin returns the Access-Control-Allow-Origin value for the
// request: "*" for a wildcard config, the request's own origin when it is on
// the allow list, "" otherwise.
func resolveOrigin(r *http.Request, origins []string, wildcard bool) string {
	if wildcard {
		return "*"
	}

	origin := r.Header.Get("Origin")

	for _, allowed := range origins {
		if origin == allowed {
			return origin
		}
	}

	return ""
}

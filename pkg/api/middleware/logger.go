// Package middleware provides the HTTP middleware of the control API.
package middleware

import (
	"net/http"
	"time"

	"github.com/goclaw/intersection/pkg/logger"
)

// Logger logs one line per request. Probe endpoints log at debug level.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", wrapped.size,
				"remote_addr", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
			}
			switch {
			case r.URL.Path == "/health" || r.URL.Path == "/ready":
				log.DebugContext(r.Context(), "HTTP request", args...)
			case wrapped.status >= http.StatusInternalServerError:
				log.WarnContext(r.Context(), "HTTP request", args...)
			default:
				log.InfoContext(r.Context(), "HTTP request", args...)
			}
		})
	}
}

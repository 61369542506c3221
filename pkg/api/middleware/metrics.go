package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder records HTTP request metrics.
type MetricsRecorder interface {
	RecordHTTPRequestContext(ctx context.Context, method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// unmatchedRoute labels requests no route matched, keeping path cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics records request count, latency and in-flight requests, labelled
// by the matched route pattern.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := wrapWriter(w)
			record := func() {
				recorder.RecordHTTPRequestContext(r.Context(), r.Method, routeLabel(r), strconv.Itoa(wrapped.status), time.Since(start))
			}

			defer func() {
				if rec := recover(); rec != nil {
					wrapped.status = http.StatusInternalServerError
					record()
					panic(rec)
				}
			}()

			next.ServeHTTP(wrapped, r)
			record()
		})
	}
}

func routeLabel(r *http.Request) string {
	if pattern := routePattern(r); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

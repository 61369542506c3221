package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goclaw/intersection/pkg/api/response"
)

// Timeout bounds the request context. A handler that gives up on the
// deadline without answering gets a 504 envelope. Handlers run on the
// request goroutine, so nothing writes after they return.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			wrapped := wrapWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if !wrapped.wroteHeader && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				response.Error(wrapped,
					http.StatusGatewayTimeout,
					response.ErrCodeGatewayTimeout,
					"request timeout",
					requestIDOrUnknown(r),
				)
			}
		})
	}
}

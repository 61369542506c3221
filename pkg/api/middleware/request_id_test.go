package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name          string
		incoming      string
		wantGenerated bool
	}{
		{name: "generate new request ID", incoming: "", wantGenerated: true},
		{name: "reuse incoming request ID", incoming: "existing-123", wantGenerated: false},
		{name: "replace oversized request ID", incoming: strings.Repeat("x", 200), wantGenerated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/intersection", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get(RequestIDHeader); got != captured || got == "" {
				t.Fatalf("response id %q, context id %q", got, captured)
			}
			if tt.wantGenerated {
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("generated request ID is not a UUID: %v", err)
				}
			} else if captured != tt.incoming {
				t.Errorf("request ID = %q, want %q", captured, tt.incoming)
			}
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

type recordedRequest struct {
	method, path, status string
	traceID              string
}

type mockMetricsRecorder struct {
	mu          sync.Mutex
	requests    []recordedRequest
	activeConns int
}

func (m *mockMetricsRecorder) RecordHTTPRequestContext(ctx context.Context, method, path, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := recordedRequest{method: method, path: path, status: status}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		rec.traceID = sc.TraceID().String()
	}
	m.requests = append(m.requests, rec)
}

func (m *mockMetricsRecorder) IncActiveConnections() { m.activeConns++ }
func (m *mockMetricsRecorder) DecActiveConnections() { m.activeConns-- }

func newMetricsRouter(rec MetricsRecorder) chi.Router {
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Put("/api/v1/intersection/roads/{road}/image", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {})
	return r
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	mock := &mockMetricsRecorder{}
	router := newMetricsRouter(mock)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/intersection/roads/Road%201/image", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if len(mock.requests) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(mock.requests))
	}
	got := mock.requests[0]
	if got.path != "/api/v1/intersection/roads/{road}/image" || got.status != "204" || got.method != http.MethodPut {
		t.Errorf("unexpected record: %+v", got)
	}
	if mock.activeConns != 0 {
		t.Errorf("active connections = %d after request, want 0", mock.activeConns)
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	mock := &mockMetricsRecorder{}
	router := newMetricsRouter(mock)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if len(mock.requests) != 1 || mock.requests[0].path != unmatchedRoute || mock.requests[0].status != "404" {
		t.Fatalf("unexpected records: %+v", mock.requests)
	}
}

func TestMetrics_SkipMetricsEndpoint(t *testing.T) {
	mock := &mockMetricsRecorder{}
	router := newMetricsRouter(mock)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if len(mock.requests) != 0 {
		t.Fatalf("expected /metrics to be skipped, got %+v", mock.requests)
	}
}

func TestMetrics_RecordsPanicsAs500(t *testing.T) {
	mock := &mockMetricsRecorder{}
	router := newMetricsRouter(mock)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))
	}()

	if len(mock.requests) != 1 || mock.requests[0].status != "500" {
		t.Fatalf("unexpected records: %+v", mock.requests)
	}
	if mock.activeConns != 0 {
		t.Errorf("active connections = %d, want 0", mock.activeConns)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	w := wrapWriter(httptest.NewRecorder())
	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusOK)
	if w.status != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", w.status)
	}
}

func TestStatusWriter_WrapIsIdempotent(t *testing.T) {
	w := wrapWriter(httptest.NewRecorder())
	if wrapWriter(w) != w {
		t.Fatal("wrapping a statusWriter should return it unchanged")
	}
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	w := wrapWriter(httptest.NewRecorder())
	if _, _, err := w.Hijack(); err == nil {
		t.Fatal("expected error for a writer without Hijack")
	}
}

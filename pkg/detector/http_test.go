package detector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func detectionServer(t *testing.T, status int, body any) (*httptest.Server, *http.Request) {
	t.Helper()
	seen := &http.Request{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = *r.Clone(context.Background())
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestNewHTTPDetector_Validation(t *testing.T) {
	_, err := NewHTTPDetector(HTTPConfig{})
	assert.Error(t, err)

	_, err = NewHTTPDetector(HTTPConfig{Endpoint: "not a url"})
	assert.Error(t, err)

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: "http://localhost:8000/detect"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTargetClass, d.targetClass)
	assert.Equal(t, DefaultTimeout, d.httpClient.Timeout)
}

func TestHTTPDetector_Flagged(t *testing.T) {
	srv, seen := detectionServer(t, http.StatusOK, detectResponse{Detections: []detection{
		{Class: "car", Confidence: 0.99},
		{Class: "Ambulance", Confidence: 0.8},
	}})

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: srv.URL + "/detect", MinConfidence: 0.5})
	require.NoError(t, err)

	found, err := d.Detect(context.Background(), "Road 2", pngHeader)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "Road 2", seen.URL.Query().Get("road"))
	assert.Equal(t, "image/png", seen.Header.Get("Content-Type"))
}

func TestHTTPDetector_BelowConfidence(t *testing.T) {
	srv, _ := detectionServer(t, http.StatusOK, detectResponse{Detections: []detection{
		{Class: "ambulance", Confidence: 0.3},
	}})

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: srv.URL, MinConfidence: 0.5})
	require.NoError(t, err)

	found, err := d.Detect(context.Background(), "Road 1", pngHeader)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHTTPDetector_CustomTargetClass(t *testing.T) {
	srv, _ := detectionServer(t, http.StatusOK, detectResponse{Detections: []detection{
		{Class: "fire_truck", Confidence: 0.9},
	}})

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: srv.URL, TargetClass: "fire_truck"})
	require.NoError(t, err)

	found, err := d.Detect(context.Background(), "Road 1", pngHeader)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestHTTPDetector_ServiceError(t *testing.T) {
	srv, _ := detectionServer(t, http.StatusServiceUnavailable, map[string]string{"error": "model loading"})

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	found, err := d.Detect(context.Background(), "Road 3", pngHeader)
	assert.False(t, found)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetectorUnavailable)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
	assert.Contains(t, err.Error(), "Road 3")
}

func TestHTTPDetector_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), "Road 1", pngHeader)
	assert.ErrorIs(t, err, ErrDetectorUnavailable)
}

func TestHTTPDetector_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), "Road 1", pngHeader)
	assert.ErrorIs(t, err, ErrDetectorUnavailable)
}

func TestHTTPDetector_EmptyImage(t *testing.T) {
	d, err := NewHTTPDetector(HTTPConfig{Endpoint: "http://localhost:1"})
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), "Road 1", nil)
	assert.ErrorIs(t, err, ErrDetectorUnavailable)
}

func TestHTTPDetector_RateLimitHonorsContext(t *testing.T) {
	srv, _ := detectionServer(t, http.StatusOK, detectResponse{})

	d, err := NewHTTPDetector(HTTPConfig{Endpoint: srv.URL, RateLimit: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), "Road 1", pngHeader)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Detect(ctx, "Road 2", pngHeader)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDetectorUnavailable))
}

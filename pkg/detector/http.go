package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/goclaw/intersection/pkg/intersection"
)

// DefaultTimeout bounds a single detection request.
const DefaultTimeout = 10 * time.Second

// HTTPConfig configures an HTTPDetector.
type HTTPConfig struct {
	// Endpoint receives a POST of the raw image bytes.
	Endpoint      string
	TargetClass   string
	MinConfidence float64
	Timeout       time.Duration
	// RateLimit is the maximum requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// HTTPDetector calls an object detection service over HTTP.
//
// The service receives the image as the request body with its sniffed
// content type and the road name in the "road" query parameter. It answers
// with the objects it found:
//
//	{"detections": [{"class": "ambulance", "confidence": 0.91}]}
//
// HTTPDetector is safe for concurrent use.
type HTTPDetector struct {
	endpoint      string
	targetClass   string
	minConfidence float64
	httpClient    *http.Client
	limiter       *rate.Limiter
}

type detectResponse struct {
	Detections []detection `json:"detections"`
}

type detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// NewHTTPDetector creates a detector for the service at cfg.Endpoint.
func NewHTTPDetector(cfg HTTPConfig) (*HTTPDetector, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("detector endpoint cannot be empty")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid detector endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	target := strings.TrimSpace(cfg.TargetClass)
	if target == "" {
		target = DefaultTargetClass
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPDetector{
		endpoint:      endpoint,
		targetClass:   target,
		minConfidence: cfg.MinConfidence,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, burst),
	}, nil
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, road intersection.Road, image []byte) (bool, error) {
	if len(image) == 0 {
		return false, &RequestError{Road: road, Cause: errors.New("image is empty")}
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return false, &RequestError{Road: road, Cause: fmt.Errorf("rate limit: %w", err)}
	}

	u, _ := url.Parse(d.endpoint)
	q := u.Query()
	q.Set("road", string(road))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(image))
	if err != nil {
		return false, &RequestError{Road: road, Cause: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, &RequestError{Road: road, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &RequestError{
			Road:       road,
			StatusCode: resp.StatusCode,
			Cause:      errors.New(strings.TrimSpace(string(body))),
		}
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, &RequestError{Road: road, Cause: fmt.Errorf("decode response: %w", err)}
	}

	for _, det := range out.Detections {
		if strings.EqualFold(det.Class, d.targetClass) && det.Confidence >= d.minConfidence {
			return true, nil
		}
	}
	return false, nil
}

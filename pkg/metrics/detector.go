package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Detection results used as the "result" label.
const (
	DetectionFlagged = "flagged"
	DetectionClear   = "clear"
	DetectionFailed  = "failed"
)

func (m *Manager) initDetectorMetrics(cfg Config) {
	m.detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_requests_total",
			Help: "Emergency vehicle detection requests by result",
		},
		[]string{"result"},
	)

	m.detectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detector_request_duration_seconds",
			Help:    "Emergency vehicle detection latency in seconds",
			Buckets: cfg.DetectionDurationBuckets,
		},
	)

	m.registry.MustRegister(m.detections)
	m.registry.MustRegister(m.detectionDuration)
}

// RecordDetection records one detector call and its outcome.
func (m *Manager) RecordDetection(result string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.detections.WithLabelValues(result).Inc()
	m.detectionDuration.Observe(duration.Seconds())
}

package detector

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/metrics"
)

const tracerName = "github.com/goclaw/intersection/pkg/detector"

// Scanner runs a Detector over the images of one session.
type Scanner struct {
	det     Detector
	log     logger.Logger
	metrics *metrics.Manager
	tracer  trace.Tracer
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLogger sets the scanner logger.
func WithLogger(l logger.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records detector metrics on m.
func WithMetrics(m *metrics.Manager) ScannerOption {
	return func(s *Scanner) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewScanner creates a scanner. A nil det flags nothing.
func NewScanner(det Detector, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		det:     det,
		log:     logger.Nop(),
		metrics: metrics.NoOpManager(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan asks the detector about every configured road that has an image and
// returns the roads it flagged. Images for unknown roads are ignored.
// Detector failures never fail the scan: the road is logged and treated as
// not flagged.
func (s *Scanner) Scan(ctx context.Context, cfg intersection.Config, images map[intersection.Road][]byte) intersection.PresenceSet {
	if s.det == nil || len(images) == 0 {
		return intersection.NewPresenceSet()
	}

	ctx, span := s.tracer.Start(ctx, "detector.Scan",
		trace.WithAttributes(attribute.Int("detector.images", len(images))))
	defer span.End()

	var flagged []intersection.Road
	for _, road := range cfg.Roads() {
		img, ok := images[road]
		if !ok || len(img) == 0 {
			continue
		}
		if s.detect(ctx, road, img) {
			flagged = append(flagged, road)
		}
	}

	span.SetAttributes(attribute.Int("detector.flagged", len(flagged)))
	if len(flagged) > 0 {
		s.log.InfoContext(ctx, "Emergency vehicle detected", "roads", flagged)
	}
	return intersection.NewPresenceSet(flagged...)
}

func (s *Scanner) detect(ctx context.Context, road intersection.Road, img []byte) bool {
	ctx, span := s.tracer.Start(ctx, "detector.Detect",
		trace.WithAttributes(
			attribute.String("road", string(road)),
			attribute.Int("image.bytes", len(img)),
		))
	defer span.End()

	start := time.Now()
	found, err := s.det.Detect(ctx, road, img)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordDetection(metrics.DetectionFailed, elapsed)
		s.log.WarnContext(ctx, "Detection failed, road treated as clear",
			"road", road,
			"error", err,
			"duration", elapsed,
		)
		return false
	}

	span.SetAttributes(attribute.Bool("detector.flagged", found))
	if found {
		s.metrics.RecordDetection(metrics.DetectionFlagged, elapsed)
	} else {
		s.metrics.RecordDetection(metrics.DetectionClear, elapsed)
	}
	s.log.DebugContext(ctx, "Detection complete", "road", road, "flagged", found, "duration", elapsed)
	return found
}

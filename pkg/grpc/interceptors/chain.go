package interceptors

import (
	"google.golang.org/grpc"

	"github.com/goclaw/intersection/pkg/logger"
)

// ChainBuilder collects interceptors in the order they run.
type ChainBuilder struct {
	unary  []grpc.UnaryServerInterceptor
	stream []grpc.StreamServerInterceptor
}

// NewChainBuilder creates an empty chain.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// WithRecovery adds panic recovery. Add it first.
func (b *ChainBuilder) WithRecovery(log logger.Logger) *ChainBuilder {
	b.unary = append(b.unary, RecoveryUnaryInterceptor(log))
	b.stream = append(b.stream, RecoveryStreamInterceptor(log))
	return b
}

// WithRequestID adds request ID propagation.
func (b *ChainBuilder) WithRequestID() *ChainBuilder {
	b.unary = append(b.unary, RequestIDUnaryInterceptor())
	b.stream = append(b.stream, RequestIDStreamInterceptor())
	return b
}

// WithTracing adds server spans.
func (b *ChainBuilder) WithTracing() *ChainBuilder {
	b.unary = append(b.unary, TracingUnaryInterceptor())
	b.stream = append(b.stream, TracingStreamInterceptor())
	return b
}

// WithLogging adds per-RPC logging.
func (b *ChainBuilder) WithLogging(log logger.Logger) *ChainBuilder {
	b.unary = append(b.unary, LoggingUnaryInterceptor(log))
	b.stream = append(b.stream, LoggingStreamInterceptor(log))
	return b
}

// WithMetrics adds RPC metrics. A nil recorder adds nothing.
func (b *ChainBuilder) WithMetrics(m MetricsRecorder) *ChainBuilder {
	if m == nil {
		return b
	}
	b.unary = append(b.unary, MetricsUnaryInterceptor(m))
	b.stream = append(b.stream, MetricsStreamInterceptor(m))
	return b
}

// WithRateLimit adds per-peer rate limiting. A non-positive rate adds
// nothing.
func (b *ChainBuilder) WithRateLimit(requestsPerSecond float64, burst int) *ChainBuilder {
	if requestsPerSecond <= 0 {
		return b
	}
	rl := NewRateLimiter(requestsPerSecond, burst)
	b.unary = append(b.unary, RateLimitUnaryInterceptor(rl))
	b.stream = append(b.stream, RateLimitStreamInterceptor(rl))
	return b
}

// Build returns the chain as server options.
func (b *ChainBuilder) Build() []grpc.ServerOption {
	var opts []grpc.ServerOption
	if len(b.unary) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(b.unary...))
	}
	if len(b.stream) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(b.stream...))
	}
	return opts
}

// DefaultChain returns recovery, request ID, tracing, logging, metrics and
// rate limiting in that order.
func DefaultChain(log logger.Logger, m MetricsRecorder, requestsPerSecond float64, burst int) *ChainBuilder {
	return NewChainBuilder().
		WithRecovery(log).
		WithRequestID().
		WithTracing().
		WithLogging(log).
		WithMetrics(m).
		WithRateLimit(requestsPerSecond, burst)
}

package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer wraps the standard gRPC health service.
type HealthServer struct {
	server *health.Server
}

// NewHealthServer creates a health server reporting NOT_SERVING until told
// otherwise.
func NewHealthServer() *HealthServer {
	s := health.NewServer()
	s.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{server: s}
}

// SetServing sets the status of service and of the server as a whole.
func (h *HealthServer) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	if service != "" {
		h.server.SetServingStatus(service, status)
	}
}

// Track polls healthy every interval and mirrors the result for service
// until ctx is cancelled.
func (h *HealthServer) Track(ctx context.Context, service string, healthy func() bool, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h.SetServing(service, healthy())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.SetServing(service, healthy())
		}
	}
}

// Shutdown marks every service NOT_SERVING and ends open Watch streams.
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
}

// Server returns the underlying health server for registration.
func (h *HealthServer) Server() *health.Server {
	return h.server
}

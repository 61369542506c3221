// Package grpc serves the intersection control surface over gRPC next to the
// HTTP API, with the standard health and reflection services.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/goclaw/intersection/pkg/grpc/interceptors"
	"github.com/goclaw/intersection/pkg/logger"
)

// Server is a gRPC server instance.
type Server struct {
	config  *Config
	log     logger.Logger
	metrics interceptors.MetricsRecorder

	mu       sync.RWMutex
	grpcSrv  *grpc.Server
	listener net.Listener
	health   *HealthServer
	pending  []serviceRegistration
	running  bool
	done     chan struct{}
}

type serviceRegistration struct {
	desc *grpc.ServiceDesc
	impl interface{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records RPC metrics on m.
func WithMetrics(m interceptors.MetricsRecorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a gRPC server with the given configuration.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{config: cfg, log: logger.Global()}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.EnableHealthCheck {
		s.health = NewHealthServer()
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	if err := s.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	opts, err := s.buildServerOptions()
	if err != nil {
		return fmt.Errorf("failed to build server options: %w", err)
	}

	s.grpcSrv = grpc.NewServer(opts...)
	for _, reg := range s.pending {
		s.grpcSrv.RegisterService(reg.desc, reg.impl)
	}
	if s.health != nil {
		grpc_health_v1.RegisterHealthServer(s.grpcSrv, s.health.Server())
	}
	if s.config.EnableReflection {
		reflection.Register(s.grpcSrv)
	}

	s.listener = lis
	s.running = true
	s.done = make(chan struct{})

	srv, done := s.grpcSrv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("gRPC server error", "error", err)
		}
	}()

	s.log.Info("gRPC server listening", "address", lis.Addr().String(), "reflection", s.config.EnableReflection)
	return nil
}

// Stop drains in-flight RPCs, forcing the stop when ctx expires first.
// Open streams are ended by the force stop.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.health != nil {
		s.health.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		<-s.done
		return nil
	case <-ctx.Done():
		s.grpcSrv.Stop()
		<-s.done
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

// RegisterService registers a service. Services registered before Start are
// queued.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grpcSrv != nil {
		s.grpcSrv.RegisterService(desc, impl)
		return
	}
	s.pending = append(s.pending, serviceRegistration{desc: desc, impl: impl})
}

// Health returns the health service, nil when disabled.
func (s *Server) Health() *HealthServer {
	return s.health
}

// Address returns the listening address.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) buildServerOptions() ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	if s.config.TLS != nil {
		creds, err := credentials.NewServerTLSFromFile(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load server certificate: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	if s.config.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(s.config.MaxConcurrentStreams)))
	}
	if s.config.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(s.config.MaxRecvMsgSize))
	}
	if s.config.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(s.config.MaxSendMsgSize))
	}
	if s.config.KeepaliveTime > 0 {
		opts = append(opts,
			grpc.KeepaliveParams(keepalive.ServerParameters{
				Time:    s.config.KeepaliveTime,
				Timeout: s.config.KeepaliveTimeout,
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             s.config.KeepaliveTime / 2,
				PermitWithoutStream: true,
			}),
		)
	}

	chain := interceptors.DefaultChain(s.log, s.metrics, s.config.RateLimit, s.config.RateBurst)
	opts = append(opts, chain.Build()...)
	return opts, nil
}

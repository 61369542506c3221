package grpc

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goclaw/intersection/config"
)

// Config holds gRPC server configuration.
type Config struct {
	// Address is the listen address, e.g. ":9090".
	Address string

	// TLS enables TLS with a server certificate when non-nil.
	TLS *TLSConfig

	// MaxConcurrentStreams limits streams per connection (0 = unlimited).
	MaxConcurrentStreams int

	MaxRecvMsgSize int
	MaxSendMsgSize int

	// KeepaliveTime is the idle ping interval; 0 keeps the gRPC default.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// RateLimit is the per-peer request rate (0 = unlimited).
	RateLimit float64
	RateBurst int

	EnableReflection  bool
	EnableHealthCheck bool
}

// TLSConfig holds the server certificate.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// DefaultConfig returns a default gRPC server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:              ":9090",
		MaxConcurrentStreams: 100,
		MaxRecvMsgSize:       4 << 20,
		MaxSendMsgSize:       4 << 20,
		KeepaliveTime:        time.Minute,
		KeepaliveTimeout:     20 * time.Second,
		EnableHealthCheck:    true,
	}
}

// ConfigFrom builds a server configuration from the application settings.
func ConfigFrom(host string, c config.GRPCConfig) *Config {
	cfg := &Config{
		Address:              net.JoinHostPort(host, strconv.Itoa(c.Port)),
		MaxConcurrentStreams: c.MaxConcurrentStreams,
		MaxRecvMsgSize:       c.MaxRecvMsgSize,
		MaxSendMsgSize:       c.MaxSendMsgSize,
		KeepaliveTime:        c.KeepaliveTime,
		KeepaliveTimeout:     c.KeepaliveTimeout,
		RateLimit:            c.RateLimit,
		RateBurst:            c.RateBurst,
		EnableReflection:     c.EnableReflection,
		EnableHealthCheck:    true,
	}
	if c.TLS.Enabled {
		cfg.TLS = &TLSConfig{CertFile: c.TLS.CertFile, KeyFile: c.TLS.KeyFile}
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.MaxConcurrentStreams < 0 {
		return fmt.Errorf("max concurrent streams cannot be negative")
	}
	if c.MaxRecvMsgSize < 0 || c.MaxSendMsgSize < 0 {
		return fmt.Errorf("message size limits cannot be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.KeepaliveTime < 0 || c.KeepaliveTimeout < 0 {
		return fmt.Errorf("keepalive durations cannot be negative")
	}
	if c.KeepaliveTime > 0 && c.KeepaliveTimeout >= c.KeepaliveTime {
		return fmt.Errorf("keepalive timeout must be less than keepalive time")
	}
	if c.TLS != nil && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("cert file and key file are required when TLS is enabled")
	}
	return nil
}

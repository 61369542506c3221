// Package config provides configuration management for the intersection
// controller.
package config

import (
	"fmt"
	"time"

	"github.com/goclaw/intersection/pkg/intersection"
)

// Config is the global configuration.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Intersection is the signal plan of the controlled intersection.
	Intersection IntersectionConfig `mapstructure:"intersection" validate:"required"`

	// Detector is the emergency vehicle detector configuration.
	Detector DetectorConfig `mapstructure:"detector"`

	// Storage is the road image store configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// FrameBus is the frame fan-out configuration.
	FrameBus FrameBusConfig `mapstructure:"framebus"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" validate:"omitempty,host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// WebSocket is the live frame stream configuration.
	WebSocket WebSocketConfig `mapstructure:"websocket"`

	// GRPC is the gRPC control surface configuration.
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds API handlers; the websocket stream is exempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	// MaxUploadBytes limits the size of an uploaded road image.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"min=1"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// WebSocketConfig holds websocket stream settings.
type WebSocketConfig struct {
	// Enabled enables the /ws/frames stream.
	Enabled bool `mapstructure:"enabled"`

	// PingInterval is how often clients are pinged.
	PingInterval time.Duration `mapstructure:"ping_interval"`

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// MaxMessageSize limits client messages in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size" validate:"min=0"`

	// SendBufferSize is the per-client outbound queue length.
	SendBufferSize int `mapstructure:"send_buffer_size" validate:"min=1"`
}

// GRPCConfig holds gRPC server settings.
type GRPCConfig struct {
	// Enabled starts the gRPC server next to the HTTP API.
	Enabled bool `mapstructure:"enabled"`

	// Port is the gRPC listen port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// EnableReflection registers the server reflection service.
	EnableReflection bool `mapstructure:"enable_reflection"`

	// MaxConcurrentStreams limits streams per connection (0 = unlimited).
	MaxConcurrentStreams int `mapstructure:"max_concurrent_streams" validate:"min=0"`

	// MaxRecvMsgSize is the largest message the server accepts in bytes.
	MaxRecvMsgSize int `mapstructure:"max_recv_msg_size" validate:"min=0"`

	// MaxSendMsgSize is the largest message the server sends in bytes.
	MaxSendMsgSize int `mapstructure:"max_send_msg_size" validate:"min=0"`

	// RateLimit is the per-peer request rate (0 = unlimited).
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// RateBurst is the per-peer burst size.
	RateBurst int `mapstructure:"rate_burst" validate:"min=0"`

	// KeepaliveTime is the server ping interval on idle connections.
	KeepaliveTime time.Duration `mapstructure:"keepalive_time"`

	// KeepaliveTimeout bounds the wait for a ping ack.
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`

	// TLS enables TLS on the listener.
	TLS GRPCTLSConfig `mapstructure:"tls"`
}

// GRPCTLSConfig holds gRPC TLS settings.
type GRPCTLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file" validate:"required_if=Enabled true"`
	KeyFile  string `mapstructure:"key_file" validate:"required_if=Enabled true"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// IntersectionConfig holds the operator-facing signal plan. The bounds here
// are the ones operators may choose from.
type IntersectionConfig struct {
	// Name identifies the intersection in metrics, logs and events.
	Name string `mapstructure:"name" validate:"required"`

	// Roads lists the approaches in service order.
	Roads []string `mapstructure:"roads" validate:"min=2,max=4,unique,dive,required"`

	// GreenSeconds is the green phase length.
	GreenSeconds int `mapstructure:"green_seconds" validate:"min=5,max=60"`

	// YellowSeconds is the yellow phase length.
	YellowSeconds int `mapstructure:"yellow_seconds" validate:"min=1,max=10"`

	// TickInterval is the wall-clock length of one second of signal time.
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"min=10ms"`
}

// Build converts the operator settings into a scheduler configuration.
func (c IntersectionConfig) Build() (intersection.Config, error) {
	roads := make([]intersection.Road, len(c.Roads))
	for i, r := range c.Roads {
		roads[i] = intersection.Road(r)
	}
	return intersection.NewConfig(roads, c.GreenSeconds, c.YellowSeconds)
}

// Equal reports whether two intersection configurations are identical.
func (c IntersectionConfig) Equal(other IntersectionConfig) bool {
	if c.Name != other.Name ||
		c.GreenSeconds != other.GreenSeconds ||
		c.YellowSeconds != other.YellowSeconds ||
		c.TickInterval != other.TickInterval ||
		len(c.Roads) != len(other.Roads) {
		return false
	}
	for i := range c.Roads {
		if c.Roads[i] != other.Roads[i] {
			return false
		}
	}
	return true
}

// DetectorConfig holds emergency vehicle detector settings.
type DetectorConfig struct {
	// Type is the detector implementation (none, static, http).
	Type string `mapstructure:"type" validate:"oneof=none static http"`

	// Endpoint is the detection service URL for the http detector.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Type http,omitempty,url"`

	// TargetClass is the object class that flags a road.
	TargetClass string `mapstructure:"target_class"`

	// MinConfidence is the minimum confidence of a flagging detection.
	MinConfidence float64 `mapstructure:"min_confidence" validate:"min=0,max=1"`

	// Timeout bounds one detection request.
	Timeout time.Duration `mapstructure:"timeout"`

	// RateLimit is the maximum detection requests per second (0 = unlimited).
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`

	// FlaggedRoads are the roads the static detector always flags.
	FlaggedRoads []string `mapstructure:"flagged_roads"`
}

// StorageConfig holds road image store settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path" validate:"required_if=InMemory false"`

	// InMemory keeps the database in memory only.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// FrameBusConfig holds frame fan-out settings.
type FrameBusConfig struct {
	// Type is the bus implementation (local, redis).
	Type string `mapstructure:"type" validate:"oneof=local redis"`

	// BufferSize is the per-subscriber buffer length.
	BufferSize int `mapstructure:"buffer_size" validate:"min=1"`

	// ChannelPrefix namespaces the Redis channels.
	ChannelPrefix string `mapstructure:"channel_prefix"`

	// Redis is the Redis connection used by the redis bus.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address" validate:"required"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlp).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlp"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true"`

	// Timeout bounds span export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is the sampling strategy (always_on, always_off, ratio).
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Intersection: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Intersection.Name)
}

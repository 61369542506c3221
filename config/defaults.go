package config

import (
	"time"

	"github.com/goclaw/intersection/pkg/detector"
	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/intersection"
)

// DefaultConfig returns a Config with sensible defaults: a four-way
// intersection with 10 s green and 3 s yellow phases.
func DefaultConfig() *Config {
	roads := intersection.DefaultRoadNames(4)
	names := make([]string, len(roads))
	for i, r := range roads {
		names[i] = string(r)
	}

	return &Config{
		App: AppConfig{
			Name:        "intersection",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				RequestTimeout:  30 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
				MaxUploadBytes:  10 << 20,
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         300,
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				PingInterval:   30 * time.Second,
				WriteTimeout:   10 * time.Second,
				MaxMessageSize: 4096,
				SendBufferSize: 64,
			},
			GRPC: GRPCConfig{
				Enabled:              false,
				Port:                 9090,
				EnableReflection:     false,
				MaxConcurrentStreams: 100,
				MaxRecvMsgSize:       4 << 20,
				MaxSendMsgSize:       4 << 20,
				RateLimit:            50,
				RateBurst:            100,
				KeepaliveTime:        time.Minute,
				KeepaliveTimeout:     20 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Intersection: IntersectionConfig{
			Name:          "main",
			Roads:         names,
			GreenSeconds:  10,
			YellowSeconds: 3,
			TickInterval:  time.Second,
		},
		Detector: DetectorConfig{
			Type:          "none",
			TargetClass:   detector.DefaultTargetClass,
			MinConfidence: 0.5,
			Timeout:       detector.DefaultTimeout,
			RateLimit:     0,
			Burst:         1,
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  64 << 20,
				NumVersionsToKeep: 1,
			},
		},
		FrameBus: FrameBusConfig{
			Type:          "local",
			BufferSize:    framebus.DefaultBufferSize,
			ChannelPrefix: framebus.DefaultChannelPrefix,
			Redis: RedisConfig{
				Address:     "localhost:6379",
				DialTimeout: 5 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}

// Command intersection runs the signal controller of one intersection with
// its HTTP control API.
package main

// @title Intersection API
// @version 1.0
// @description Traffic signal controller with emergency vehicle priority

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/intersection/config"
	"github.com/goclaw/intersection/pkg/api"
	"github.com/goclaw/intersection/pkg/api/handlers"
	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/detector"
	"github.com/goclaw/intersection/pkg/framebus"
	grpcsrv "github.com/goclaw/intersection/pkg/grpc"
	grpchandlers "github.com/goclaw/intersection/pkg/grpc/handlers"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/metrics"
	"github.com/goclaw/intersection/pkg/storage"
	"github.com/goclaw/intersection/pkg/storage/badger"
	"github.com/goclaw/intersection/pkg/storage/memory"
	"github.com/goclaw/intersection/pkg/telemetry/tracing"
	"github.com/goclaw/intersection/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")
	watchFlag   = flag.Bool("watch", true, "Reload the configuration file when it changes")

	// CLI overrides
	serverPort   = flag.Int("port", 0, "Override server port")
	logLevel     = flag.String("log-level", "", "Override log level")
	debugMode    = flag.Bool("debug", false, "Enable debug mode")
	name         = flag.String("name", "", "Override intersection name")
	roads        = flag.String("roads", "", "Override roads, comma separated in service order")
	greenSeconds = flag.Int("green", 0, "Override green phase seconds")
	yellowSecs   = flag.Int("yellow", 0, "Override yellow phase seconds")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}

	overrides := buildOverrides()
	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	logger.SetGlobal(log)
	defer log.Close()

	if err := run(cfg, loader.Source(), overrides, log); err != nil {
		log.Error("Controller exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires the controller and its surfaces and blocks until shutdown. source
// is the config file that was loaded, watched for changes when set.
func run(cfg *config.Config, source string, overrides map[string]interface{}, log logger.Logger) error {
	log.Info("Starting intersection controller",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"environment", cfg.App.Environment,
		"intersection", cfg.Intersection.Name,
	)
	log.Debug("Configuration loaded", "source", source, "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:         cfg.App.Name,
		Version:      version.Version,
		Environment:  cfg.App.Environment,
		Intersection: cfg.Intersection.Name,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	metricsManager := newMetrics(cfg)
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	store, err := newStorage(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	det, err := newDetector(cfg.Detector, log)
	if err != nil {
		return err
	}

	bus, closeBus, err := newFrameBus(ctx, cfg.FrameBus, metricsManager, log)
	if err != nil {
		return err
	}
	defer closeBus()

	plan, err := cfg.Intersection.Build()
	if err != nil {
		return fmt.Errorf("build intersection: %w", err)
	}
	ctrl, err := controller.New(cfg.Intersection.Name, plan,
		controller.WithLogger(log),
		controller.WithMetrics(metricsManager),
		controller.WithFrameBus(bus),
		controller.WithStorage(store),
		controller.WithDetector(det),
		controller.WithTickInterval(cfg.Intersection.TickInterval),
	)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	defer ctrl.Close()

	var stream *handlers.WebSocketHandler
	if cfg.Server.WebSocket.Enabled {
		stream = handlers.NewWebSocketHandler(bus, log, handlers.WebSocketConfig{
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
			PingInterval:   cfg.Server.WebSocket.PingInterval,
			WriteTimeout:   cfg.Server.WebSocket.WriteTimeout,
			MaxMessageSize: cfg.Server.WebSocket.MaxMessageSize,
			SendBuffer:     cfg.Server.WebSocket.SendBufferSize,
		})
	}
	httpServer := api.NewHTTPServer(cfg, log, &api.Handlers{
		Intersection: handlers.NewIntersectionHandler(ctrl, log, cfg.Server.HTTP.MaxUploadBytes),
		Health:       handlers.NewHealthHandler(ctrl, stream),
		WebSocket:    stream,
		Metrics:      metricsManager,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErr <- err
		}
	}()

	grpcServer, err := startGRPC(ctx, cfg, ctrl, metricsManager, log)
	if err != nil {
		return err
	}

	if *watchFlag && source != "" {
		watcher, err := startWatcher(ctx, source, cfg, overrides, ctrl, log)
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	log.Info("Intersection controller is running",
		"http_addr", httpServer.Addr(),
		"grpc_enabled", grpcServer != nil,
		"metrics_port", cfg.Metrics.Port,
		"roads", plan.Roads(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		if err := grpcServer.Stop(shutdownCtx); err != nil {
			log.Error("Error shutting down gRPC server", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("Error flushing traces", "error", err)
	}

	log.Info("Intersection controller stopped")
	return runErr
}

// startGRPC serves the intersection service over gRPC when enabled. It
// returns a nil server when gRPC is disabled.
func startGRPC(ctx context.Context, cfg *config.Config, ctrl *controller.Controller, m *metrics.Manager, log logger.Logger) (*grpcsrv.Server, error) {
	if !cfg.Server.GRPC.Enabled {
		return nil, nil
	}

	srv, err := grpcsrv.New(grpcsrv.ConfigFrom(cfg.Server.Host, cfg.Server.GRPC),
		grpcsrv.WithLogger(log),
		grpcsrv.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("create gRPC server: %w", err)
	}
	srv.RegisterService(&grpchandlers.ServiceDesc,
		grpchandlers.NewIntersectionServer(ctrl, log, cfg.Server.HTTP.MaxUploadBytes))

	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start gRPC server: %w", err)
	}
	if h := srv.Health(); h != nil {
		go h.Track(ctx, grpchandlers.ServiceName, ctrl.Bus().Healthy, 0)
	}
	return srv, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

func newMetrics(cfg *config.Config) *metrics.Manager {
	mc := metrics.DefaultConfig()
	mc.Enabled = cfg.Metrics.Enabled
	mc.Port = cfg.Metrics.Port
	mc.Path = cfg.Metrics.Path
	return metrics.NewManager(mc)
}

func newStorage(cfg config.StorageConfig, log logger.Logger) (storage.Storage, error) {
	switch cfg.Type {
	case "badger":
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			InMemory:          cfg.Badger.InMemory,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger storage: %w", err)
		}
		log.Info("Initialized Badger storage", "path", cfg.Badger.Path, "in_memory", cfg.Badger.InMemory)
		return store, nil
	case "memory", "":
		log.Info("Initialized memory storage")
		return memory.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newDetector returns nil for type none: sessions then always start with a
// fair round.
func newDetector(cfg config.DetectorConfig, log logger.Logger) (detector.Detector, error) {
	switch cfg.Type {
	case "none", "":
		log.Info("Emergency vehicle detection disabled")
		return nil, nil
	case "static":
		flagged := make([]intersection.Road, len(cfg.FlaggedRoads))
		for i, r := range cfg.FlaggedRoads {
			flagged[i] = intersection.Road(r)
		}
		log.Info("Using static detector", "flagged", flagged)
		return detector.NewStaticDetector(flagged...), nil
	case "http":
		det, err := detector.NewHTTPDetector(detector.HTTPConfig{
			Endpoint:      cfg.Endpoint,
			TargetClass:   cfg.TargetClass,
			MinConfidence: cfg.MinConfidence,
			Timeout:       cfg.Timeout,
			RateLimit:     cfg.RateLimit,
			Burst:         cfg.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("create http detector: %w", err)
		}
		log.Info("Using HTTP detector", "endpoint", cfg.Endpoint, "target_class", cfg.TargetClass)
		return det, nil
	default:
		return nil, fmt.Errorf("unknown detector type %q", cfg.Type)
	}
}

func newFrameBus(ctx context.Context, cfg config.FrameBusConfig, m *metrics.Manager, log logger.Logger) (framebus.Bus, func(), error) {
	switch cfg.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		timeout := cfg.Redis.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		bus := framebus.NewRedisBus(client, cfg.ChannelPrefix, cfg.BufferSize, m)
		log.Info("Using Redis frame bus", "address", cfg.Redis.Address, "prefix", cfg.ChannelPrefix)
		return bus, func() {
			_ = bus.Close()
			_ = client.Close()
		}, nil
	case "local", "":
		bus := framebus.NewLocalBus(cfg.BufferSize, m)
		return bus, func() { _ = bus.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown frame bus type %q", cfg.Type)
	}
}

// reloader applies hot-reloadable settings from a changed config file.
type reloader struct {
	mu      sync.Mutex
	current config.HotReloadableConfig
	ctrl    *controller.Controller
	log     logger.Logger
}

func (r *reloader) apply(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := config.ExtractHotReloadable(cfg)
	if !r.current.Changed(next) {
		return
	}

	if next.LogLevel != r.current.LogLevel {
		r.log.SetLevel(logger.ParseLevel(next.LogLevel))
		r.log.Info("Log level changed", "level", next.LogLevel)
	}

	if r.current.IntersectionChanged(next) {
		cur, nxt := r.current.Intersection, next.Intersection
		if cur.Name != nxt.Name || cur.TickInterval != nxt.TickInterval {
			r.log.Warn("Intersection name and tick interval changes need a restart",
				"name", nxt.Name,
				"tick_interval", nxt.TickInterval,
			)
		}
		if planChanged(cur, nxt) {
			plan, err := nxt.Build()
			if err != nil {
				r.log.Error("Ignoring invalid intersection plan", "error", err)
				return
			}
			if err := r.ctrl.Reconfigure(context.Background(), plan); err != nil {
				r.log.Error("Failed to apply intersection plan", "error", err)
				return
			}
		}
	}
	r.current = next
}

func planChanged(a, b config.IntersectionConfig) bool {
	if a.GreenSeconds != b.GreenSeconds || a.YellowSeconds != b.YellowSeconds || len(a.Roads) != len(b.Roads) {
		return true
	}
	for i := range a.Roads {
		if a.Roads[i] != b.Roads[i] {
			return true
		}
	}
	return false
}

func startWatcher(ctx context.Context, path string, cfg *config.Config, overrides map[string]interface{}, ctrl *controller.Controller, log logger.Logger) (*config.Watcher, error) {
	watcher, err := config.NewWatcher(path, nil,
		config.WithOverrides(overrides),
		config.WithWatcherLogger(log),
	)
	if err != nil {
		return nil, err
	}

	r := &reloader{current: config.ExtractHotReloadable(cfg), ctrl: ctrl, log: log}
	watcher.OnChange(r.apply)

	go func() {
		if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Config watcher stopped", "error", err)
		}
	}()
	return watcher, nil
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}
	if *name != "" {
		overrides["intersection.name"] = *name
	}
	if *roads != "" {
		var list []string
		for _, r := range strings.Split(*roads, ",") {
			if r = strings.TrimSpace(r); r != "" {
				list = append(list, r)
			}
		}
		overrides["intersection.roads"] = list
	}
	if *greenSeconds != 0 {
		overrides["intersection.green_seconds"] = *greenSeconds
	}
	if *yellowSecs != 0 {
		overrides["intersection.yellow_seconds"] = *yellowSecs
	}

	return overrides
}

func printHelp() {
	fmt.Printf("intersection - emergency-aware traffic signal controller\n\n")
	fmt.Printf("Usage: intersection [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  intersection                                   # Four-way intersection with defaults\n")
	fmt.Printf("  intersection -config intersection.yaml         # Use specific config file\n")
	fmt.Printf("  intersection -roads North,East,South -green 20 # Three-way intersection\n")
	fmt.Printf("  intersection -version                          # Print version info\n")
}

// Package controller runs one intersection: it owns the scheduler, drives it
// from a tick source while a session is running, and publishes every frame.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/intersection/pkg/detector"
	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/metrics"
	"github.com/goclaw/intersection/pkg/storage"
	"github.com/goclaw/intersection/pkg/storage/memory"
	"github.com/goclaw/intersection/pkg/ticker"
)

const tracerName = "github.com/goclaw/intersection/pkg/controller"

// Settings is the operator view of an intersection configuration.
type Settings struct {
	Roads         []intersection.Road `json:"roads"`
	GreenSeconds  int                 `json:"green_seconds"`
	YellowSeconds int                 `json:"yellow_seconds"`
}

// Status is a snapshot of the controller.
type Status struct {
	Intersection string     `json:"intersection"`
	Session      string     `json:"session,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	intersection.Status
	Config Settings           `json:"config"`
	Frame  intersection.Frame `json:"frame"`
	Images []ImageInfo        `json:"images"`
}

// ImageInfo describes a stored road image without its data.
type ImageInfo struct {
	Road        intersection.Road `json:"road"`
	Filename    string            `json:"filename,omitempty"`
	ContentType string            `json:"content_type"`
	Size        int               `json:"size"`
	UploadedAt  time.Time         `json:"uploaded_at"`
}

// Controller serializes lifecycle commands for one intersection and runs
// the tick loop of the active session.
type Controller struct {
	mu sync.Mutex

	name    string
	sched   *intersection.Scheduler
	store   storage.Storage
	det     detector.Detector
	scanner *detector.Scanner
	bus     framebus.Bus
	metrics *metrics.Manager
	log     logger.Logger
	tracer  trace.Tracer

	interval time.Duration
	ticks    <-chan time.Time

	session   string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool

	// last is only touched by the tick loop, or with the loop stopped.
	last intersection.Frame
}

// New creates an idle controller for the intersection called name.
func New(name string, cfg intersection.Config, opts ...Option) (*Controller, error) {
	if name == "" {
		return nil, fmt.Errorf("intersection name cannot be empty")
	}
	sched, err := intersection.NewScheduler(cfg)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		name:     name,
		sched:    sched,
		log:      logger.Global(),
		metrics:  metrics.NoOpManager(),
		interval: ticker.DefaultInterval,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = memory.NewMemoryStorage()
	}
	if c.bus == nil {
		c.bus = framebus.NewLocalBus(framebus.DefaultBufferSize, c.metrics)
	}
	c.log = c.log.With("intersection", name)
	c.scanner = detector.NewScanner(c.det, detector.WithLogger(c.log), detector.WithMetrics(c.metrics))
	c.last = sched.Frame()
	c.metrics.SetLifecycle(name, intersection.Idle.String())

	return c, nil
}

// Name returns the intersection name.
func (c *Controller) Name() string { return c.name }

// Bus returns the frame bus.
func (c *Controller) Bus() framebus.Bus { return c.bus }

// Start begins or resumes a session. Starting from idle runs the detector
// over the stored road images to decide which roads are served first.
// Starting a running session does nothing. It reports whether the session
// state changed.
func (c *Controller) Start(ctx context.Context) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "controller.Start")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	prev := c.sched.Lifecycle()
	if prev == intersection.Running {
		return false, nil
	}

	presence := intersection.NewPresenceSet()
	if prev == intersection.Idle {
		presence = c.scanner.Scan(ctx, c.sched.Config(), c.loadImages(ctx))
		c.session = uuid.NewString()
		c.startedAt = time.Now()
	}

	if !c.sched.Start(presence) {
		return false, nil
	}

	st := c.sched.Status()
	span.SetAttributes(
		attribute.String("session", c.session),
		attribute.String("round", st.Round.String()),
		attribute.Int("flagged", len(st.Flagged)),
	)
	if prev == intersection.Idle {
		if st.Round == intersection.RoundPriority {
			c.metrics.RecordPriorityRound(c.name)
		}
		c.log.InfoContext(ctx, "Session started",
			"session", c.session,
			"round", st.Round,
			"flagged", st.Flagged,
		)
	} else {
		c.log.InfoContext(ctx, "Session resumed", "session", c.session, "tick", st.Tick)
	}

	c.runLoop()
	c.publishLifecycle(ctx)
	return true, nil
}

// Stop freezes the running session on its last frame. Stopping a session
// that is not running does nothing.
func (c *Controller) Stop(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "controller.Stop")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sched.Stop() {
		return false
	}
	c.stopLoop()

	c.log.InfoContext(ctx, "Session stopped", "session", c.session, "tick", c.sched.Status().Tick)
	c.publishLifecycle(ctx)
	return true
}

// Reset ends any session, shows all roads red and discards uploaded images.
// Reset is idempotent.
func (c *Controller) Reset(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "controller.Reset")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLoop()
	c.sched.Reset()
	c.resetLocked(ctx)
	c.log.InfoContext(ctx, "Intersection reset")
	c.publishLifecycle(ctx)
}

// Reconfigure replaces the intersection configuration. It implies Reset.
func (c *Controller) Reconfigure(ctx context.Context, cfg intersection.Config) error {
	ctx, span := c.tracer.Start(ctx, "controller.Reconfigure")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.stopLoop()
	if err := c.sched.Reconfigure(cfg); err != nil {
		return err
	}
	c.resetLocked(ctx)
	c.log.InfoContext(ctx, "Intersection reconfigured",
		"roads", cfg.Roads(),
		"green", cfg.Green(),
		"yellow", cfg.Yellow(),
	)
	c.publishLifecycle(ctx)
	return nil
}

// UploadImage stores the camera image for road, replacing any earlier one.
// It is used by the next session started from idle.
func (c *Controller) UploadImage(ctx context.Context, img *storage.RoadImage) error {
	if img == nil {
		return &storage.InvalidImageError{Reason: "image is nil"}
	}
	if !c.Config().Has(img.Road) {
		return fmt.Errorf("%w: %q", ErrUnknownRoad, img.Road)
	}
	if err := c.store.SaveImage(ctx, img); err != nil {
		return err
	}
	c.log.InfoContext(ctx, "Road image uploaded", "road", img.Road, "bytes", img.Size())
	return nil
}

// DeleteImage removes the stored image for road.
func (c *Controller) DeleteImage(ctx context.Context, road intersection.Road) error {
	if !c.Config().Has(road) {
		return fmt.Errorf("%w: %q", ErrUnknownRoad, road)
	}
	return c.store.DeleteImage(ctx, road)
}

// Images lists the stored images of configured roads.
func (c *Controller) Images(ctx context.Context) ([]ImageInfo, error) {
	imgs, err := c.store.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	cfg := c.Config()
	out := make([]ImageInfo, 0, len(imgs))
	for _, img := range imgs {
		if !cfg.Has(img.Road) {
			continue
		}
		out = append(out, ImageInfo{
			Road:        img.Road,
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        img.Size(),
			UploadedAt:  img.UploadedAt,
		})
	}
	return out, nil
}

// Frame returns the last emitted frame.
func (c *Controller) Frame() intersection.Frame {
	return c.sched.Frame()
}

// Config returns the active intersection configuration.
func (c *Controller) Config() intersection.Config {
	return c.sched.Config()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status(ctx context.Context) Status {
	c.mu.Lock()
	session, startedAt := c.session, c.startedAt
	c.mu.Unlock()

	cfg := c.sched.Config()
	st := Status{
		Intersection: c.name,
		Session:      session,
		Status:       c.sched.Status(),
		Config:       SettingsOf(cfg),
		Frame:        c.sched.Frame(),
	}
	if session != "" {
		st.StartedAt = &startedAt
	}
	if images, err := c.Images(ctx); err == nil {
		st.Images = images
	} else {
		c.log.WarnContext(ctx, "Failed to list road images", "error", err)
	}
	if st.Images == nil {
		st.Images = []ImageInfo{}
	}
	return st
}

// Close stops the tick loop. The controller rejects Start afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.stopLoop()
	c.sched.Stop()
	return nil
}

// SettingsOf returns the operator view of cfg.
func SettingsOf(cfg intersection.Config) Settings {
	return Settings{
		Roads:         cfg.Roads(),
		GreenSeconds:  cfg.Green(),
		YellowSeconds: cfg.Yellow(),
	}
}

func (c *Controller) loadImages(ctx context.Context) map[intersection.Road][]byte {
	imgs, err := c.store.ListImages(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to load road images, starting without detection", "error", err)
		return nil
	}
	out := make(map[intersection.Road][]byte, len(imgs))
	for _, img := range imgs {
		out[img.Road] = img.Data
	}
	return out
}

// resetLocked clears session state after the scheduler was reset.
func (c *Controller) resetLocked(ctx context.Context) {
	c.session = ""
	c.startedAt = time.Time{}
	c.last = c.sched.Frame()
	for _, sig := range c.last {
		c.metrics.SetRemaining(c.name, string(sig.Road), 0)
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.WarnContext(ctx, "Failed to clear road images", "error", err)
	}
}

func (c *Controller) runLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	opts := []ticker.Option{
		ticker.WithInterval(c.interval),
		ticker.WithLogger(c.log),
	}
	if c.ticks != nil {
		opts = append(opts, ticker.WithTicks(c.ticks))
	}
	src := ticker.New(c.sched, c.sink(c.session), opts...)

	go func() {
		defer close(done)
		if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("Tick loop exited", "error", err)
		}
	}()
}

func (c *Controller) stopLoop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func (c *Controller) sink(session string) ticker.Sink {
	return func(ctx context.Context, frame intersection.Frame, st intersection.Status) {
		c.metrics.RecordTick(c.name)
		for _, sig := range frame {
			c.metrics.SetRemaining(c.name, string(sig.Road), sig.Remaining)
		}

		if cur, ok := frame.Active(); ok {
			prev, had := c.last.Active()
			if !had || prev.Road != cur.Road || prev.Color != cur.Color {
				c.metrics.RecordPhaseTransition(c.name, string(cur.Road), cur.Color.String())
				c.log.Debug("Phase changed",
					"session", session,
					"tick", st.Tick,
					"road", cur.Road,
					"color", cur.Color,
					"round", st.Round,
				)
			}
		}
		c.last = frame

		event := &framebus.Event{
			Type:         framebus.EventFrame,
			Intersection: c.name,
			Session:      session,
			Tick:         st.Tick,
			Lifecycle:    st.Lifecycle,
			Round:        st.Round,
			Frame:        frame,
			Timestamp:    time.Now(),
		}
		if err := c.bus.Publish(ctx, event); err != nil {
			c.log.Warn("Failed to publish frame", "tick", st.Tick, "error", err)
		}
	}
}

func (c *Controller) publishLifecycle(ctx context.Context) {
	st := c.sched.Status()
	c.metrics.SetLifecycle(c.name, st.Lifecycle.String())

	event := &framebus.Event{
		Type:         framebus.EventLifecycle,
		Intersection: c.name,
		Session:      c.session,
		Tick:         st.Tick,
		Lifecycle:    st.Lifecycle,
		Round:        st.Round,
		Frame:        c.sched.Frame(),
		Timestamp:    time.Now(),
	}
	if err := c.bus.Publish(ctx, event); err != nil {
		c.log.WarnContext(ctx, "Failed to publish lifecycle event", "lifecycle", st.Lifecycle, "error", err)
	}
}

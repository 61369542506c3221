package controller

import (
	"time"

	"github.com/goclaw/intersection/pkg/detector"
	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/metrics"
	"github.com/goclaw/intersection/pkg/storage"
)

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithFrameBus sets the bus frames and lifecycle events are published on.
func WithFrameBus(bus framebus.Bus) Option {
	return func(c *Controller) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithStorage sets the road image store.
func WithStorage(store storage.Storage) Option {
	return func(c *Controller) {
		if store != nil {
			c.store = store
		}
	}
}

// WithDetector sets the detector run over stored images when a session
// starts from idle.
func WithDetector(det detector.Detector) Option {
	return func(c *Controller) {
		c.det = det
	}
}

// WithTickInterval sets the wall-clock length of one tick.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTicks drives sessions from ticks instead of a wall-clock ticker.
func WithTicks(ticks <-chan time.Time) Option {
	return func(c *Controller) {
		c.ticks = ticks
	}
}

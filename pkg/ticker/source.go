// Package ticker drives a scheduler at a fixed cadence.
package ticker

import (
	"context"
	"time"

	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
)

// DefaultInterval is the wall-clock length of one tick.
const DefaultInterval = time.Second

// Advancer is the part of the scheduler the tick source drives.
// AdvanceStatus returns the frame together with the status taken in the
// same step.
type Advancer interface {
	AdvanceStatus() (intersection.Frame, intersection.Status)
	Running() bool
}

// Sink receives every frame produced by the source with the matching status.
type Sink func(ctx context.Context, frame intersection.Frame, st intersection.Status)

// Source invokes AdvanceStatus once per interval while the scheduler is running.
// The wait between ticks is the only place it blocks.
type Source struct {
	adv      Advancer
	sink     Sink
	interval time.Duration
	ticks    <-chan time.Time
	log      logger.Logger
}

// Option is a functional option for Source configuration.
type Option func(*Source)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicks replaces the wall-clock ticker with an external tick channel.
func WithTicks(ticks <-chan time.Time) Option {
	return func(s *Source) {
		s.ticks = ticks
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Source) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a tick source for adv. sink may be nil.
func New(adv Advancer, sink Sink, opts ...Option) *Source {
	s := &Source{
		adv:      adv,
		sink:     sink,
		interval: DefaultInterval,
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the configured tick interval.
func (s *Source) Interval() time.Duration {
	return s.interval
}

// Run emits the first tick immediately, then one tick per interval. It
// returns nil once the scheduler is no longer running, or ctx.Err() when ctx
// is cancelled. Stop and reset are observed at the top of each tick.
func (s *Source) Run(ctx context.Context) error {
	ticks := s.ticks
	if ticks == nil {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		ticks = t.C
	}

	var n uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.adv.Running() {
			s.log.Debug("tick source stopping", "ticks", n)
			return nil
		}

		frame, st := s.adv.AdvanceStatus()
		n++
		if s.sink != nil {
			s.sink(ctx, frame, st)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
		}
	}
}

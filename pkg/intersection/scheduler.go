package intersection

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Lifecycle is the session state visible to callers.
type Lifecycle int

const (
	Idle Lifecycle = iota
	Running
	Stopped
)

// String returns the string representation of Lifecycle.
func (l Lifecycle) String() string {
	switch l {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the lifecycle by name.
func (l Lifecycle) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a lifecycle name.
func (l *Lifecycle) UnmarshalText(text []byte) error {
	for _, v := range []Lifecycle{Idle, Running, Stopped} {
		if strings.EqualFold(string(text), v.String()) {
			*l = v
			return nil
		}
	}
	return fmt.Errorf("unknown lifecycle %q", text)
}

// Round is the part of the cycle currently being served.
type Round int

const (
	RoundNone Round = iota
	// RoundPriority serves only the flagged roads, in config order.
	RoundPriority
	// RoundFair serves every road once, in config order.
	RoundFair
)

// String returns the string representation of Round.
func (r Round) String() string {
	switch r {
	case RoundNone:
		return "none"
	case RoundPriority:
		return "priority"
	case RoundFair:
		return "fair"
	default:
		return "unknown"
	}
}

// MarshalText encodes the round by name.
func (r Round) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a round name.
func (r *Round) UnmarshalText(text []byte) error {
	for _, v := range []Round{RoundNone, RoundPriority, RoundFair} {
		if strings.EqualFold(string(text), v.String()) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown round %q", text)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Lifecycle Lifecycle `json:"lifecycle"`
	Round     Round     `json:"round"`
	Active    Road      `json:"active,omitempty"`
	Color     Color     `json:"color"`
	Remaining int       `json:"remaining"`
	Tick      uint64    `json:"tick"`
	Flagged   []Road    `json:"flagged"`
}

// Scheduler is the phase state machine of one intersection. It is
// time-agnostic: every Advance call is one tick. All methods are safe for
// concurrent use and are serialized internally.
type Scheduler struct {
	mu sync.Mutex

	cfg       Config
	lifecycle Lifecycle
	round     Round
	presence  PresenceSet

	// cursor: order[pos] holds color for remaining more ticks
	order     []Road
	pos       int
	color     Color
	remaining int
	// primed is set by a fresh Start so the next Advance emits the first
	// tick instead of stepping past it.
	primed bool

	tick  uint64
	frame Frame
}

// NewScheduler creates an idle scheduler for cfg.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if !cfg.valid() {
		return nil, &ConfigError{Field: "config", Reason: "config must be built with NewConfig"}
	}
	s := &Scheduler{cfg: cfg}
	s.resetLocked()
	return s, nil
}

// Start begins a session. From Idle it captures presence and enters the
// priority round when any configured road is flagged, the fair round
// otherwise. From Stopped it resumes where the session was frozen and
// ignores presence. It reports whether the lifecycle changed.
func (s *Scheduler) Start(presence PresenceSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.lifecycle {
	case Running:
		return false
	case Stopped:
		s.lifecycle = Running
		return true
	}

	flagged := presence.Ordered(s.cfg.roads)
	s.presence = NewPresenceSet(flagged...)
	if len(flagged) > 0 {
		s.round = RoundPriority
		s.order = flagged
	} else {
		s.round = RoundFair
		s.order = s.cfg.Roads()
	}
	s.pos = 0
	s.color = Green
	s.remaining = s.cfg.green
	s.primed = true
	s.tick = 0
	s.lifecycle = Running
	return true
}

// Stop freezes the session. The last frame stays current and Advance
// returns it unchanged until the next Start or Reset. It reports whether the
// lifecycle changed.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle != Running {
		return false
	}
	s.lifecycle = Stopped
	return true
}

// Reset returns the scheduler to Idle, discarding the cycle position and
// the captured presence set. Reset is idempotent.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Reconfigure replaces the configuration and resets the scheduler.
func (s *Scheduler) Reconfigure(cfg Config) error {
	if !cfg.valid() {
		return &ConfigError{Field: "config", Reason: "config must be built with NewConfig"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.resetLocked()
	return nil
}

// Advance moves the session forward one tick and returns the frame for that
// tick. When the session is not running it returns the last frame unchanged.
func (s *Scheduler) Advance() Frame {
	frame, _ := s.AdvanceStatus()
	return frame
}

// AdvanceStatus is Advance returning the status snapshot taken under the
// same lock, so the tick, round and frame always describe one moment.
func (s *Scheduler) AdvanceStatus() (Frame, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle == Running {
		if s.primed {
			s.primed = false
		} else {
			s.step()
		}
		s.tick++
		s.frame = s.render()
	}
	return slices.Clone(s.frame), s.statusLocked()
}

// Running reports whether the session is running.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle == Running
}

// Lifecycle returns the current lifecycle state.
func (s *Scheduler) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Frame returns a copy of the last emitted frame.
func (s *Scheduler) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.frame)
}

// Config returns the active configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Presence returns the presence set captured at session start.
func (s *Scheduler) Presence() PresenceSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewPresenceSet(s.presence.Ordered(s.cfg.roads)...)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() Status {
	st := Status{
		Lifecycle: s.lifecycle,
		Round:     s.round,
		Tick:      s.tick,
		Flagged:   s.presence.Ordered(s.cfg.roads),
	}
	if active, ok := s.frame.Active(); ok {
		st.Active = active.Road
		st.Color = active.Color
		st.Remaining = active.Remaining
	}
	return st
}

func (s *Scheduler) step() {
	s.remaining--
	if s.remaining > 0 {
		return
	}
	if s.color == Green {
		s.color = Yellow
		s.remaining = s.cfg.yellow
		return
	}

	s.pos++
	if s.pos >= len(s.order) {
		// A cycle is the priority round for the presence captured at start,
		// when any, followed by a fair round. Presence is never re-sampled.
		flagged := s.presence.Ordered(s.cfg.roads)
		if s.round == RoundFair && len(flagged) > 0 {
			s.round = RoundPriority
			s.order = flagged
		} else {
			s.round = RoundFair
			s.order = s.cfg.Roads()
		}
		s.pos = 0
	}
	s.color = Green
	s.remaining = s.cfg.green
}

func (s *Scheduler) render() Frame {
	f := allRed(s.cfg.roads)
	active := s.order[s.pos]
	for i := range f {
		if f[i].Road == active {
			f[i].Color = s.color
			f[i].Remaining = s.remaining
			break
		}
	}
	return f
}

func (s *Scheduler) resetLocked() {
	s.lifecycle = Idle
	s.round = RoundNone
	s.presence = PresenceSet{}
	s.order = nil
	s.pos = 0
	s.color = Red
	s.remaining = 0
	s.primed = false
	s.tick = 0
	s.frame = allRed(s.cfg.roads)
}

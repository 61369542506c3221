// Package framebus fans signal frames and lifecycle changes out to
// subscribers such as websocket clients, in process or across processes.
package framebus

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/intersection/pkg/intersection"
)

// DefaultBufferSize is the per-subscriber buffer used when none is given.
const DefaultBufferSize = 16

// Bus delivers every published event to every subscriber.
type Bus interface {
	// Publish sends an event to all current subscribers.
	Publish(ctx context.Context, event *Event) error

	// Subscribe creates a channel that receives events for subscriber id.
	Subscribe(ctx context.Context, id string) (<-chan *Event, error)

	// Unsubscribe removes the subscription and closes its channel.
	Unsubscribe(id string) error

	// Close shuts down the bus and releases resources.
	Close() error

	// Healthy returns true if the bus is operational.
	Healthy() bool
}

// EventType identifies the kind of event.
type EventType string

const (
	// EventFrame carries the frame emitted by one tick.
	EventFrame EventType = "frame"
	// EventLifecycle reports a start, stop, reset or reconfiguration.
	EventLifecycle EventType = "lifecycle"
)

// Event is one message on the bus.
type Event struct {
	Type         EventType              `json:"type"`
	Intersection string                 `json:"intersection"`
	Session      string                 `json:"session,omitempty"`
	Tick         uint64                 `json:"tick"`
	Lifecycle    intersection.Lifecycle `json:"lifecycle"`
	Round        intersection.Round     `json:"round"`
	Frame        intersection.Frame     `json:"frame"`
	Timestamp    time.Time              `json:"timestamp"`
}

func validate(event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Intersection == "" {
		return fmt.Errorf("event intersection cannot be empty")
	}
	return nil
}

// MetricsRecorder receives bus delivery failures.
type MetricsRecorder interface {
	RecordFramePublishFailed(mode string)
}

type nopMetrics struct{}

func (nopMetrics) RecordFramePublishFailed(string) {}

// deliver hands event to ch, dropping the oldest queued event when the
// subscriber is behind.
func deliver(ch chan *Event, event *Event, mode string, m MetricsRecorder) {
	select {
	case ch <- event:
		return
	default:
	}
	m.RecordFramePublishFailed(mode)
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- event:
	default:
		m.RecordFramePublishFailed(mode)
	}
}

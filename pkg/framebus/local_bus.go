package framebus

import (
	"context"
	"fmt"
	"sync"
)

// LocalBus is an in-memory Bus using Go channels.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
	bufferSize  int
	metrics     MetricsRecorder
	closed      bool
}

// NewLocalBus creates a new in-memory bus. A nil recorder disables metrics.
func NewLocalBus(bufferSize int, m MetricsRecorder) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &LocalBus{
		subscribers: make(map[string]chan *Event),
		bufferSize:  bufferSize,
		metrics:     m,
	}
}

// Publish sends event to every subscriber without blocking.
func (b *LocalBus) Publish(_ context.Context, event *Event) error {
	if err := validate(event); err != nil {
		b.metrics.RecordFramePublishFailed("local")
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.metrics.RecordFramePublishFailed("local")
		return fmt.Errorf("frame bus is closed")
	}

	for _, ch := range b.subscribers {
		deliver(ch, event, "local", b.metrics)
	}
	return nil
}

// Subscribe creates a buffered channel for subscriber id.
func (b *LocalBus) Subscribe(_ context.Context, id string) (<-chan *Event, error) {
	if id == "" {
		return nil, fmt.Errorf("subscriber id cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("frame bus is closed")
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, fmt.Errorf("subscriber %s already exists", id)
	}

	ch := make(chan *Event, b.bufferSize)
	b.subscribers[id] = ch
	return ch, nil
}

// Unsubscribe removes the subscription and closes the channel.
func (b *LocalBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return nil
	}
	close(ch)
	delete(b.subscribers, id)
	return nil
}

// Close shuts down the bus and closes all subscriber channels.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	return nil
}

// Healthy returns true if the bus is not closed.
func (b *LocalBus) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Subscribers returns the number of active subscriptions.
func (b *LocalBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

package framebus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the Redis channels used by the bus.
const DefaultChannelPrefix = "intersection:frames:"

// RedisBus is a Redis Pub/Sub backed Bus. Events are published on
// prefix+intersection and every subscriber pattern-subscribes to prefix*,
// so controllers in several processes share one stream.
type RedisBus struct {
	client        redis.UniversalClient
	channelPrefix string
	bufferSize    int
	metrics       MetricsRecorder

	mu          sync.RWMutex
	subscribers map[string]*redisSubscription
	closed      bool
}

type redisSubscription struct {
	ch     chan *Event
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus creates a new Redis-backed bus.
func NewRedisBus(client redis.UniversalClient, channelPrefix string, bufferSize int, m MetricsRecorder) *RedisBus {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &RedisBus{
		client:        client,
		channelPrefix: channelPrefix,
		bufferSize:    bufferSize,
		metrics:       m,
		subscribers:   make(map[string]*redisSubscription),
	}
}

// Publish sends event via Redis Pub/Sub.
func (b *RedisBus) Publish(ctx context.Context, event *Event) error {
	if err := validate(event); err != nil {
		b.metrics.RecordFramePublishFailed("redis")
		return err
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		b.metrics.RecordFramePublishFailed("redis")
		return fmt.Errorf("frame bus is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.metrics.RecordFramePublishFailed("redis")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channelPrefix+event.Intersection, data).Err(); err != nil {
		b.metrics.RecordFramePublishFailed("redis")
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe pattern-subscribes subscriber id to every intersection channel.
func (b *RedisBus) Subscribe(ctx context.Context, id string) (<-chan *Event, error) {
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

	pubsub := b.client.PSubscribe(ctx, b.channelPrefix+"*")
	// Wait for the subscription so events published right after Subscribe
	// returns are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		ch:     make(chan *Event, b.bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.subscribers[id] = sub

	go b.forward(subCtx, pubsub, sub)

	return sub.ch, nil
}

func (b *RedisBus) forward(ctx context.Context, pubsub *redis.PubSub, sub *redisSubscription) {
	defer close(sub.done)
	defer func() {
		_ = pubsub.Close()
	}()

	redisCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.metrics.RecordFramePublishFailed("redis")
				continue
			}
			deliver(sub.ch, &event, "redis", b.metrics)
		}
	}
}

// Unsubscribe removes the Redis subscription for id.
func (b *RedisBus) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if ok {
		b.stop(sub)
	}
	return nil
}

func (b *RedisBus) stop(sub *redisSubscription) {
	sub.cancel()
	<-sub.done
	close(sub.ch)
}

// Close shuts down all subscriptions. The Redis client is owned by the
// caller and stays open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[string]*redisSubscription)
	b.mu.Unlock()

	for _, sub := range subs {
		b.stop(sub)
	}
	return nil
}

// Healthy checks if the Redis connection is alive.
func (b *RedisBus) Healthy() bool {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return false
	}
	return b.client.Ping(context.Background()).Err() == nil
}

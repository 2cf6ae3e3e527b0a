package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type subscription struct {
	pattern  string
	consumer string
	handler  Handler
}

// LocalBus delivers events synchronously to in-process subscribers.
// Used when KurrentDB is not configured, and in tests.
type LocalBus struct {
	mu     sync.RWMutex
	subs   []subscription
	closed bool
}

// NewLocalBus creates an empty in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Publish calls every matching handler in subscription order.
// Handler errors are logged and do not fail the publish.
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if !matchesPattern(event.Type, s.pattern) {
			continue
		}
		if err := s.handler(ctx, event); err != nil {
			log.Error().Err(err).
				Str("consumer", s.consumer).
				Str("event_type", event.Type).
				Str("event_id", event.ID).
				Msg("event handler failed")
		}
	}
	return nil
}

// Subscribe registers handler for events matching pattern
func (b *LocalBus) Subscribe(_ context.Context, pattern string, consumerName string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, consumer: consumerName, handler: handler})
	return nil
}

// Close drops all subscriptions
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Health always succeeds
func (b *LocalBus) Health() error {
	return nil
}

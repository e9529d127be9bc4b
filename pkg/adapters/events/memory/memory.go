// Package memory provides an in-process event bus for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/learnloop/ecosync/internal/ports"
)

// Bus fans events out to in-process subscribers. Handlers run on the
// publisher's goroutine so tests observe events synchronously.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]ports.EventHandler
	closed      bool
}

// NewBus creates an empty in-memory event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]ports.EventHandler)}
}

// Publish delivers the event to every subscriber of the topic. Handler
// errors are swallowed; one consumer must not affect another.
func (b *Bus) Publish(ctx context.Context, topic string, event ports.Event) error {
	b.mu.RLock()
	handlers := append([]ports.EventHandler(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		_ = handler(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for a topic until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
	b.mu.Unlock()
	return nil
}

// Close drops all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]ports.EventHandler)
	b.closed = true
	return nil
}

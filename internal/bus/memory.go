// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bus

import (
	"context"
	"sync"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
)

// Handler receives events delivered by a MemoryBus.
type Handler func(ctx context.Context, event Event) error

// MemoryBus delivers events synchronously to in-process subscribers and
// keeps a log of everything published.
type MemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	published []Published
	closed    bool
}

// Published is one entry of the MemoryBus log.
type Published struct {
	Topic string
	Event Event
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe registers handler for topic.
func (b *MemoryBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperr.New(apperr.KindInternal, "bus is closed")
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Publish records event and runs every handler for topic in order. The first
// handler error is returned after all handlers ran.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperr.New(apperr.KindInternal, "bus is closed")
	}
	b.published = append(b.published, Published{Topic: topic, Event: event})
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	var first error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Published returns a copy of the publish log.
func (b *MemoryBus) Published() []Published {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Published(nil), b.published...)
}

// Topics returns the topic of each published event, in order.
func (b *MemoryBus) Topics() []string {
	var out []string
	for _, p := range b.Published() {
		out = append(out, p.Topic)
	}
	return out
}

// Close stops accepting events.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

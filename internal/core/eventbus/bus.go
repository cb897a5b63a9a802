// Package eventbus is the in-process publish/subscribe channel of a session.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// Stats reports bus activity.
type Stats struct {
	Subscribers     int
	Published       uint64
	HandlerFailures uint64
}

type subscription struct {
	id        uint64
	eventType domain.EventType
	all       bool
	handler   ports.EventHandler
}

// Bus delivers each published event synchronously, in registration order,
// to the handlers registered at publish time. Nothing is buffered.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	closed bool

	published atomic.Uint64
	failures  atomic.Uint64
}

var (
	_ ports.EventPublisher  = (*Bus)(nil)
	_ ports.EventSubscriber = (*Bus)(nil)
)

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("component", "event_bus"),
	}
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType domain.EventType, handler ports.EventHandler) func() {
	return b.add(subscription{eventType: eventType, handler: handler})
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler ports.EventHandler) func() {
	return b.add(subscription{all: true, handler: handler})
}

func (b *Bus) add(sub subscription) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	sub.id = b.nextID

	// Copy on write so in-progress publishes keep their snapshot.
	next := make([]subscription, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs = next
}

// Publish delivers event to the matching handlers. Handlers may publish,
// subscribe or unsubscribe; changes apply from the next publish on.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.subs
	b.mu.RUnlock()

	b.published.Add(1)

	for _, s := range subs {
		if !s.all && s.eventType != event.Type {
			continue
		}
		if err := b.invoke(ctx, s, event); err != nil {
			b.failures.Add(1)
			b.logger.WarnContext(ctx, "event handler failed",
				"event_type", event.Type,
				"subscription", s.id,
				"error", err,
			)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, s subscription, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				"event_type", event.Type,
				"panic", r,
				"stack_trace", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, event)
}

// Close drops every subscriber. Later publishes and subscriptions are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Subscribers:     n,
		Published:       b.published.Load(),
		HandlerFailures: b.failures.Load(),
	}
}

package ports

import (
	"context"

	"github.com/lorrc/ups-collab/internal/core/domain"
)

// EventHandler consumes one event. A returned error is logged by the bus and
// does not stop delivery to other handlers.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventPublisher publishes events to a session.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// EventSubscriber registers handlers. The returned function unsubscribes and
// is safe to call more than once.
type EventSubscriber interface {
	Subscribe(eventType domain.EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
}

// EventBroadcaster fans shared events out to the other participants of a resource.
type EventBroadcaster interface {
	Broadcast(ctx context.Context, resourceID string, event domain.Event) error
}

// ChangeFeed carries shared events between service instances.
type ChangeFeed interface {
	EventBroadcaster
	// Listen blocks until ctx is done, passing every event produced by
	// another instance to handler.
	Listen(ctx context.Context, handler func(resourceID string, event domain.Event)) error
}

// EventSink records events to an external stream.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event) error
}

package eventbus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// RouterParams configures a Router.
type RouterParams struct {
	Bus         ports.EventPublisher
	Origin      string
	ResourceID  string
	Broadcaster ports.EventBroadcaster // optional
	Sink        ports.EventSink        // optional
	Logger      *slog.Logger
}

// Router is the publisher handed to a session's components. It stamps origin
// and resource metadata, publishes on the local bus and forwards shared
// events produced by this session to the rest of the resource.
type Router struct {
	bus         ports.EventPublisher
	origin      string
	resourceID  string
	broadcaster ports.EventBroadcaster
	sink        ports.EventSink
	logger      *slog.Logger
}

var _ ports.EventPublisher = (*Router)(nil)

// NewRouter creates a Router.
func NewRouter(params RouterParams) *Router {
	return &Router{
		bus:         params.Bus,
		origin:      params.Origin,
		resourceID:  params.ResourceID,
		broadcaster: params.Broadcaster,
		sink:        params.Sink,
		logger:      params.Logger.With("component", "event_router", "origin", params.Origin),
	}
}

// Publish implements ports.EventPublisher.
func (r *Router) Publish(ctx context.Context, event domain.Event) {
	if event.Meta(domain.MetaOrigin) == "" {
		event = event.WithMeta(domain.MetaOrigin, r.origin)
	}
	if event.Meta(domain.MetaResource) == "" {
		event = event.WithMeta(domain.MetaResource, r.resourceID)
	}

	r.bus.Publish(ctx, event)

	if !event.Type.Shared() || event.Meta(domain.MetaOrigin) != r.origin {
		return
	}

	if r.broadcaster != nil {
		if err := r.broadcaster.Broadcast(ctx, r.resourceID, event); err != nil {
			r.logger.WarnContext(ctx, "failed to broadcast event", "event_type", event.Type, "error", err)
		}
	}
	if r.sink != nil {
		if err := r.sink.Emit(ctx, event); err != nil {
			r.logger.WarnContext(ctx, "failed to emit event", "event_type", event.Type, "error", err)
		}
	}
}

// Fanout broadcasts to several destinations, attempting every one.
type Fanout []ports.EventBroadcaster

var _ ports.EventBroadcaster = Fanout(nil)

// Broadcast implements ports.EventBroadcaster.
func (f Fanout) Broadcast(ctx context.Context, resourceID string, event domain.Event) error {
	var errs []error
	for _, b := range f {
		if err := b.Broadcast(ctx, resourceID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

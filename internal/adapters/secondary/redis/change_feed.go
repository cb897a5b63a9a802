package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// envelope is the pub/sub message. Event holds the encoded domain event.
type envelope struct {
	Instance   string          `json:"instance"`
	ResourceID string          `json:"resourceId"`
	Event      json.RawMessage `json:"event"`
}

// ChangeFeed relays shared events between service instances over one
// pub/sub channel.
type ChangeFeed struct {
	client   *redis.Client
	channel  string
	instance string
	logger   *slog.Logger
}

var _ ports.ChangeFeed = (*ChangeFeed)(nil)

// ChangeFeedParams defines the dependencies of a ChangeFeed.
type ChangeFeedParams struct {
	Client     *redis.Client
	Channel    string
	InstanceID string
	Logger     *slog.Logger
}

// NewChangeFeed creates a ChangeFeed.
func NewChangeFeed(params ChangeFeedParams) *ChangeFeed {
	return &ChangeFeed{
		client:   params.Client,
		channel:  params.Channel,
		instance: params.InstanceID,
		logger:   params.Logger.With("component", "change_feed"),
	}
}

// Broadcast publishes event for the other instances.
func (f *ChangeFeed) Broadcast(ctx context.Context, resourceID string, event domain.Event) error {
	encoded, err := domain.EncodeEvent(event.WithMeta(domain.MetaInstance, f.instance))
	if err != nil {
		return err
	}

	payload, err := json.Marshal(envelope{
		Instance:   f.instance,
		ResourceID: resourceID,
		Event:      encoded,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Listen subscribes to the channel and hands every foreign event to handler
// until ctx is done. Messages published by this instance are skipped.
func (f *ChangeFeed) Listen(ctx context.Context, handler func(resourceID string, event domain.Event)) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}
	f.logger.Info("listening for shared events", "channel", f.channel, "instance", f.instance)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.handle(msg.Payload, handler)
		}
	}
}

func (f *ChangeFeed) handle(payload string, handler func(resourceID string, event domain.Event)) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		f.logger.Warn("dropping malformed message", "error", err)
		return
	}
	if env.Instance == f.instance {
		return
	}

	event, err := domain.DecodeEvent(env.Event)
	if err != nil {
		f.logger.Warn("dropping undecodable event", "from", env.Instance, "error", err)
		return
	}
	handler(env.ResourceID, event)
}

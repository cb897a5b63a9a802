package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// delivery is a shared event addressed to the clients of one resource.
type delivery struct {
	resourceID string
	event      domain.Event
}

// Hub maintains the set of active Clients and relays shared events between
// the sessions of a resource.
type Hub struct {
	// Rooms maps resource IDs to the clients connected to them
	rooms map[string]map[*Client]bool

	// Deliveries waiting to be fanned out to rooms
	broadcast chan delivery

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mu protects the rooms map
	mu sync.RWMutex

	// sessions counts clients that have not finished tearing down
	sessions sync.WaitGroup

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan delivery, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues a shared event for every other session on resourceID.
// It implements ports.EventBroadcaster.
func (h *Hub) Broadcast(ctx context.Context, resourceID string, event domain.Event) error {
	h.enqueue(ctx, resourceID, event)
	return nil
}

// Deliver queues an event received from another instance.
func (h *Hub) Deliver(resourceID string, event domain.Event) {
	h.enqueue(context.Background(), resourceID, event)
}

func (h *Hub) enqueue(ctx context.Context, resourceID string, event domain.Event) {
	select {
	case h.broadcast <- delivery{resourceID: resourceID, event: event}:
	default:
		h.logger.WarnContext(ctx, "broadcast channel full, dropping event",
			"event_type", event.Type,
			"resource_id", resourceID,
		)
	}
}

// Run starts the hub's event loop until ctx is done. This MUST be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case d := <-h.broadcast:
			h.broadcastEvent(d)
		}
	}
}

// closeAll asks every connected client to disconnect.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for resourceID, room := range h.rooms {
		for client := range room {
			client.CloseSend()
		}
		delete(h.rooms, resourceID)
	}
}

// Drain waits until every client has closed its session or ctx is done.
func (h *Hub) Drain(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// register hands client to the event loop unless the hub has stopped.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// unregister hands client to the event loop unless the hub has stopped.
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
		client.CloseSend()
	}
}

// registerClient adds a client to its resource's room
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[client.ResourceID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[client.ResourceID] = room
	}
	room[client] = true

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"resource_id", client.ResourceID,
		"room_size", len(room),
	)
}

// unregisterClient removes a client from its room. Unknown clients are ignored.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.ResourceID]
	if !ok || !room[client] {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.ResourceID)
	}

	client.CloseSend()

	h.logger.Info("client unregistered",
		"user_id", client.UserID,
		"resource_id", client.ResourceID,
	)
}

// broadcastEvent hands an event to every client in the room except the
// session that produced it.
func (h *Hub) broadcastEvent(d delivery) {
	origin := d.event.Meta(domain.MetaOrigin)

	h.mu.RLock()
	room, ok := h.rooms[d.resourceID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		if client.SessionID() != origin {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", d.event.Type,
		"resource_id", d.resourceID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.deliver(d.event) {
			h.logger.Warn("client inbox full, unregistering",
				"user_id", client.UserID,
				"resource_id", client.ResourceID,
			)
			h.unregisterClient(client)
		}
	}
}

// Participants returns the number of distinct users connected to a resource.
func (h *Hub) Participants(resourceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[uuid.UUID]struct{})
	for client := range h.rooms[resourceID] {
		users[client.UserID] = struct{}{}
	}
	return len(users)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, room := range h.rooms {
		count += len(room)
	}
	return count
}

// GetRoomCount returns the number of resources with at least one client
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/services"
	"github.com/lorrc/ups-collab/internal/infrastructure/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16 * 1024

	// Outbound frames buffered per client.
	sendBuffer = 256

	// Shared events from other sessions buffered per client.
	remoteBuffer = 256

	// Time allowed for the session to report the user offline.
	closeTimeout = 5 * time.Second
)

// DefaultCursorRate is the number of cursor frames per second a client may send.
const DefaultCursorRate = 20

// ClientParams holds the dependencies of a Client.
type ClientParams struct {
	Hub        *Hub
	Conn       *websocket.Conn
	Session    *services.Session
	CursorRate float64
	Logger     *slog.Logger
}

// Client is a middleman between the websocket connection, the user's
// session and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *services.Session

	UserID     uuid.UUID
	ResourceID string

	// Buffered channel of encoded outbound frames. Guarded by mu so the
	// session bus never sends on a closed channel.
	send   chan []byte
	mu     sync.Mutex
	closed bool

	// Shared events from other sessions, applied by ingestLoop.
	remote chan domain.Event

	cursorLimiter *rate.Limiter
	unsubscribe   func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewClient wires a client to its session. The session's events are
// written to the connection from this point on.
func NewClient(params ClientParams) *Client {
	cursorRate := params.CursorRate
	if cursorRate <= 0 {
		cursorRate = DefaultCursorRate
	}

	session := params.Session
	ctx := logging.WithUserID(context.Background(), session.User.UserID.String())
	ctx = logging.WithResourceID(ctx, session.ResourceID)
	ctx = logging.WithSessionID(ctx, session.ID)
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		hub:           params.Hub,
		conn:          params.Conn,
		session:       session,
		UserID:        session.User.UserID,
		ResourceID:    session.ResourceID,
		send:          make(chan []byte, sendBuffer),
		remote:        make(chan domain.Event, remoteBuffer),
		cursorLimiter: rate.NewLimiter(rate.Limit(cursorRate), int(cursorRate)),
		ctx:           ctx,
		cancel:        cancel,
		logger: params.Logger.With(
			"component", "websocket_client",
			"user_id", session.User.UserID.String(),
			"resource_id", session.ResourceID,
			"session_id", session.ID,
		),
	}
	c.unsubscribe = session.Subscribe(c.forward)
	return c
}

// SessionID returns the id of the client's session.
func (c *Client) SessionID() string {
	return c.session.ID
}

// CloseSend safely closes the send channel exactly once
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// queue hands a frame to the write pump. Frames are dropped when the
// client is closed or too slow.
func (c *Client) queue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("send buffer full, dropping frame")
	}
}

// forward writes every session event to the peer.
func (c *Client) forward(_ context.Context, event domain.Event) error {
	frame, err := domain.EncodeEvent(event)
	if err != nil {
		return err
	}
	c.queue(frame)
	return nil
}

// deliver queues a shared event from another session. It reports false
// when the client cannot keep up.
func (c *Client) deliver(event domain.Event) bool {
	select {
	case c.remote <- event:
		return true
	default:
		return false
	}
}

func (c *Client) ingestLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case event := <-c.remote:
			c.session.Ingest(c.ctx, event)
		}
	}
}

// goAsync runs fn off the read loop. teardown waits for it.
func (c *Client) goAsync(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Serve registers the client with the hub and starts its pumps. It returns
// false if the hub is no longer running.
func (c *Client) Serve() bool {
	c.hub.sessions.Add(1)
	if !c.hub.register(c) {
		c.teardown()
		_ = c.conn.Close()
		return false
	}

	c.wg.Add(1)
	go c.ingestLoop()
	go c.WritePump()
	go c.ReadPump()
	return true
}

// teardown stops background work and closes the session.
func (c *Client) teardown() {
	defer c.hub.sessions.Done()

	c.unsubscribe()
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	c.session.Close(ctx)
}

// ReadPump pumps messages from the websocket connection to the session.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.teardown()
		c.logger.Info("websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps frames from the session to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

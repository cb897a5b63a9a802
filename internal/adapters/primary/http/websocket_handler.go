package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	wsAdapter "github.com/lorrc/ups-collab/internal/adapters/primary/websocket"
	"github.com/lorrc/ups-collab/internal/auth"
	"github.com/lorrc/ups-collab/internal/config"
	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/services"
	"github.com/lorrc/ups-collab/internal/infrastructure/logging"
)

// SessionOpener opens a collaboration session for a user on a resource.
type SessionOpener interface {
	OpenSession(ctx context.Context, user domain.Participant, resourceID string) (*services.Session, error)
}

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	hub          *wsAdapter.Hub
	sessions     SessionOpener
	tm           *auth.TokenManager
	upgrader     websocket.Upgrader
	cursorRate   float64
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// WebSocketHandlerParams holds the dependencies of a WebSocketHandler.
type WebSocketHandlerParams struct {
	Hub          *wsAdapter.Hub
	Sessions     SessionOpener
	TokenManager *auth.TokenManager
	Config       *config.Config
	ErrorHandler *ErrorHandler
	Logger       *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(params WebSocketHandlerParams) *WebSocketHandler {
	cfg := params.Config
	handler := &WebSocketHandler{
		hub:          params.Hub,
		sessions:     params.Sessions,
		tm:           params.TokenManager,
		cursorRate:   cfg.Collaboration.CursorRate,
		errorHandler: params.ErrorHandler,
		logger:       params.Logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP authenticates the connection, opens a session on the
// requested resource and hands the upgraded connection to the hub.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. Authenticate the connection via query parameter
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.logger.WarnContext(ctx, "websocket connection rejected: missing token",
			"remote_addr", r.RemoteAddr,
		)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing authentication token", Code: "UNAUTHORIZED"})
		return
	}

	claims, err := h.tm.ValidateToken(tokenString)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket connection rejected: invalid token",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Code: "UNAUTHORIZED"})
		return
	}

	// 2. Open the session before upgrading so failures get a proper status
	resourceID := strings.TrimSpace(r.URL.Query().Get("resource"))
	ctx = logging.WithUserID(ctx, claims.UserID.String())
	ctx = logging.WithResourceID(ctx, resourceID)

	user := domain.Participant{UserID: claims.UserID, Name: claims.Name}
	session, err := h.sessions.OpenSession(context.WithoutCancel(ctx), user, resourceID)
	if err != nil {
		h.errorHandler.Handle(w, r.WithContext(ctx), err)
		return
	}

	// 3. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		session.Close(context.WithoutCancel(ctx))
		return
	}

	h.logger.InfoContext(ctx, "websocket connection established",
		"session_id", session.ID,
		"remote_addr", r.RemoteAddr,
	)

	// 4. Register the client and start its pumps
	client := wsAdapter.NewClient(wsAdapter.ClientParams{
		Hub:        h.hub,
		Conn:       conn,
		Session:    session,
		CursorRate: h.cursorRate,
		Logger:     h.logger,
	})
	client.Serve()
}

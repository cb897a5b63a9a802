package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/ups-collab/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ups-collab/internal/auth"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// MeResponse describes the authenticated caller.
type MeResponse struct {
	UserID    uuid.UUID       `json:"userId"`
	Name      string          `json:"name"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	Features  map[string]bool `json:"features"`
}

// MeHandler handles HTTP requests for the authenticated user.
type MeHandler struct {
	resourceService ports.ResourceService
	errorHandler    *ErrorHandler
	logger          *slog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(
	resourceService ports.ResourceService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *MeHandler {
	return &MeHandler{
		resourceService: resourceService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "me"),
	}
}

// RegisterRoutes registers the /me routes.
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleMe)
}

// HandleMe handles GET /me. Clients call it before opening a session to
// learn who they are and which capabilities they can offer.
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.getClaims(w, r)
	if !ok {
		return
	}

	resp := MeResponse{
		UserID:   claims.UserID,
		Name:     claims.Name,
		Features: h.resourceService.Features(r.Context()),
	}
	if claims.ExpiresAt != nil {
		expiresAt := claims.ExpiresAt.Time.UTC()
		resp.ExpiresAt = &expiresAt
	}

	WriteSuccess(w, resp)
}

// getClaims extracts and validates user claims from the request context.
func (h *MeHandler) getClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return nil, false
	}
	return claims, true
}

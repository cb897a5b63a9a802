package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/ups-collab/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ups-collab/internal/adapters/primary/validation"
	"github.com/lorrc/ups-collab/internal/auth"
	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

const maxCommentsPerPage = 200

// ResourceHandler handles the request/response endpoints of a resource.
type ResourceHandler struct {
	resourceService ports.ResourceService
	errorHandler    *ErrorHandler
	logger          *slog.Logger
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(
	resourceService ports.ResourceService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *ResourceHandler {
	return &ResourceHandler{
		resourceService: resourceService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "resource"),
	}
}

// RegisterRoutes registers the resource endpoints.
// These routes are relative to /api/v1/resources/{resourceID}
func (h *ResourceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/comments", h.HandleListComments)
	r.Get("/exports", h.HandleExportHistory)
	r.Post("/exports/schedules", h.HandleScheduleExport)
	r.Get("/members", h.HandleListMembers)
	r.Post("/members", h.HandleInviteMember)
	r.Delete("/members/{userID}", h.HandleRemoveMember)
}

// --- Request DTOs ---

// ScheduleExportRequest defines the expected JSON body for scheduling an export
type ScheduleExportRequest struct {
	Format          string    `json:"format"`
	IncludeResolved bool      `json:"includeResolved"`
	RunAt           time.Time `json:"runAt"`
}

// Validate validates the schedule export request
func (r *ScheduleExportRequest) Validate() error {
	v := validation.NewValidator()

	v.OneOf("format", r.Format, []string{string(domain.ExportCSV), string(domain.ExportJSON)}).
		Custom("runAt", !r.RunAt.IsZero(), "This field is required")

	return v.Err()
}

// InviteMemberRequest defines the expected JSON body for inviting a user
type InviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Validate validates the invite request
func (r *InviteMemberRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("email", r.Email).
		MaxLength("email", r.Email, 254).
		OneOf("role", r.Role, []string{"admin", "manager", "member", "viewer"})

	return v.Err()
}

// --- Handlers ---

// HandleListComments lists a page of the resource's comments. Query
// parameters status, priority, assignee and search narrow the result.
func (h *ResourceHandler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.getClaims(w, r); !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	comments, err := h.resourceService.ListComments(r.Context(), chi.URLParam(r, "resourceID"), filter)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	pagination := validation.ParsePagination(r, maxCommentsPerPage)
	WritePage(w, comments, pagination.Limit, pagination.Offset)
}

// HandleExportHistory lists the resource's completed exports.
func (h *ResourceHandler) HandleExportHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.getClaims(w, r); !ok {
		return
	}

	records, err := h.resourceService.ExportHistory(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, records)
}

// HandleScheduleExport defers an export of the resource.
func (h *ResourceHandler) HandleScheduleExport(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.getClaims(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[ScheduleExportRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	resourceID := chi.URLParam(r, "resourceID")
	schedule, err := h.resourceService.ScheduleExport(r.Context(), ports.ScheduleExportParams{
		Options: domain.ExportOptions{
			ResourceID:      resourceID,
			Format:          domain.ExportFormat(req.Format),
			IncludeResolved: req.IncludeResolved,
		},
		RunAt:       req.RunAt,
		RequestedBy: claims.UserID,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "export scheduled",
		"schedule_id", schedule.ID,
		"resource_id", resourceID,
		"run_at", schedule.RunAt,
	)

	WriteCreated(w, schedule)
}

// HandleListMembers lists the users taking part in the resource.
func (h *ResourceHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.getClaims(w, r); !ok {
		return
	}

	participants, err := h.resourceService.ListParticipants(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, participants)
}

// HandleInviteMember invites an email address to the resource.
func (h *ResourceHandler) HandleInviteMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.getClaims(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[InviteMemberRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	err = h.resourceService.InviteUser(r.Context(), ports.InviteUserParams{
		ResourceID: chi.URLParam(r, "resourceID"),
		Email:      req.Email,
		Role:       req.Role,
		ActorID:    claims.UserID,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, SuccessResponse{Message: "Invitation sent"})
}

// HandleRemoveMember removes a user from the resource.
func (h *ResourceHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.getClaims(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		v := validation.NewValidator()
		v.Custom("userID", false, "Invalid user ID")
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	err = h.resourceService.RemoveUser(r.Context(), ports.RemoveUserParams{
		ResourceID: chi.URLParam(r, "resourceID"),
		UserID:     userID,
		ActorID:    claims.UserID,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteNoContent(w)
}

// HandleFeatures reports which capabilities are enabled.
func (h *ResourceHandler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.resourceService.Features(r.Context()))
}

// --- Helper methods ---

// getClaims extracts and validates user claims from the request context
func (h *ResourceHandler) getClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
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

// parseFilter reads a FilterConfig from the query string.
func parseFilter(r *http.Request) (domain.FilterConfig, error) {
	v := validation.NewValidator()
	var filter domain.FilterConfig

	for _, s := range validation.ParseListQueryParam(r, "status") {
		status := domain.CommentStatus(s)
		v.Custom("status", status.IsValid(), "Unknown status "+s)
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, p := range validation.ParseListQueryParam(r, "priority") {
		priority := domain.Priority(p)
		v.Custom("priority", priority.IsValid(), "Unknown priority "+p)
		filter.Priorities = append(filter.Priorities, priority)
	}
	filter.Assignee = validation.ParseUUIDQueryParam(r, "assignee", v)
	filter.Search = strings.TrimSpace(r.URL.Query().Get("search"))

	if err := v.Err(); err != nil {
		return domain.FilterConfig{}, err
	}
	if !validation.ParseBoolQueryParam(r, "includeResolved", true) && len(filter.Statuses) == 0 {
		filter.Statuses = domain.UnresolvedStatuses()
	}
	return filter, nil
}

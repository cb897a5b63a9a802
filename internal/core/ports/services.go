package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
)

// ScheduleExportParams defines the input for deferring an export.
type ScheduleExportParams struct {
	Options     domain.ExportOptions
	RunAt       time.Time
	RequestedBy uuid.UUID
}

// InviteUserParams defines the input for inviting a user to a resource.
type InviteUserParams struct {
	ResourceID string
	Email      string
	Role       string
	ActorID    uuid.UUID
}

// RemoveUserParams defines the input for removing a user from a resource.
type RemoveUserParams struct {
	ResourceID string
	UserID     uuid.UUID
	ActorID    uuid.UUID
}

// ResourceService exposes the request/response operations on a resource
// that do not need a live session.
type ResourceService interface {
	ListComments(ctx context.Context, resourceID string, filter domain.FilterConfig) ([]domain.Comment, error)
	ExportHistory(ctx context.Context, resourceID string) ([]domain.ExportRecord, error)
	ScheduleExport(ctx context.Context, params ScheduleExportParams) (*domain.ExportSchedule, error)
	ListParticipants(ctx context.Context, resourceID string) ([]domain.Participant, error)
	InviteUser(ctx context.Context, params InviteUserParams) error
	RemoveUser(ctx context.Context, params RemoveUserParams) error
	Features(ctx context.Context) map[string]bool
}

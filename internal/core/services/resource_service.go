package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// ResourceService serves resource reads and team management over plain
// request/response, outside of any session.
type ResourceService struct {
	comments ports.CommentBackend
	exports  ports.ExportBackend
	team     ports.TeamBackend
	flags    ports.FeatureFlags
	logger   *slog.Logger
}

var _ ports.ResourceService = (*ResourceService)(nil)

// NewResourceService creates a new resource service.
func NewResourceService(
	comments ports.CommentBackend,
	exports ports.ExportBackend,
	team ports.TeamBackend,
	flags ports.FeatureFlags,
	logger *slog.Logger,
) ports.ResourceService {
	return &ResourceService{
		comments: comments,
		exports:  exports,
		team:     team,
		flags:    flags,
		logger:   logger.With("component", "resource_service"),
	}
}

// ListComments returns the resource's comments matching filter.
func (s *ResourceService) ListComments(ctx context.Context, resourceID string, filter domain.FilterConfig) ([]domain.Comment, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, apperrors.ErrResourceIDRequired
	}

	comments, err := s.comments.ListComments(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	out := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ExportHistory lists the resource's completed exports.
func (s *ResourceService) ExportHistory(ctx context.Context, resourceID string) ([]domain.ExportRecord, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureExport); err != nil {
		return nil, err
	}
	return s.exports.GetExportHistory(ctx, resourceID)
}

// ScheduleExport defers an export to params.RunAt.
func (s *ResourceService) ScheduleExport(ctx context.Context, params ports.ScheduleExportParams) (*domain.ExportSchedule, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureExport); err != nil {
		return nil, err
	}
	if params.Options.ResourceID == "" {
		return nil, apperrors.ErrResourceIDRequired
	}
	if params.Options.Format == "" {
		params.Options.Format = domain.ExportCSV
	}
	if !params.Options.Format.IsValid() {
		return nil, apperrors.ErrInvalidExportFormat
	}
	if !params.RunAt.After(time.Now()) {
		return nil, apperrors.ErrScheduleInPast
	}

	return s.exports.ScheduleExport(ctx, domain.ExportSchedule{
		ID:          uuid.NewString(),
		Options:     params.Options,
		RunAt:       params.RunAt.UTC(),
		RequestedBy: params.RequestedBy,
	})
}

// ListParticipants returns the users taking part in the resource.
func (s *ResourceService) ListParticipants(ctx context.Context, resourceID string) ([]domain.Participant, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, apperrors.ErrResourceIDRequired
	}
	return s.team.ListParticipants(ctx, resourceID)
}

// InviteUser invites an email address to the resource.
func (s *ResourceService) InviteUser(ctx context.Context, params ports.InviteUserParams) error {
	errs := apperrors.NewValidationErrors()
	if strings.TrimSpace(params.ResourceID) == "" {
		errs.Add("resourceId", apperrors.ErrResourceIDRequired.Error())
	}
	if _, err := mail.ParseAddress(params.Email); err != nil {
		errs.Add("email", "must be a valid email address")
	}
	role := params.Role
	if role == "" {
		role = "member"
	}
	if errs.HasErrors() {
		return errs
	}

	if err := s.team.InviteUser(ctx, domain.Invitation{
		ResourceID: params.ResourceID,
		Email:      strings.ToLower(strings.TrimSpace(params.Email)),
		Role:       role,
		InvitedBy:  params.ActorID,
	}); err != nil {
		return fmt.Errorf("invite user: %w", err)
	}

	s.logger.InfoContext(ctx, "user invited", "resource_id", params.ResourceID, "actor_id", params.ActorID)
	return nil
}

// RemoveUser removes a user from the resource. Users cannot remove themselves.
func (s *ResourceService) RemoveUser(ctx context.Context, params ports.RemoveUserParams) error {
	if params.UserID == params.ActorID {
		return apperrors.NewForbiddenError("you cannot remove yourself")
	}
	if err := s.team.RemoveUser(ctx, params.ResourceID, params.UserID); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return nil
}

// Features returns the state of every known feature flag.
func (s *ResourceService) Features(ctx context.Context) map[string]bool {
	return s.flags.Features(ctx)
}

package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/mocks"
	"github.com/lorrc/ups-collab/internal/core/ports"
	"github.com/lorrc/ups-collab/internal/core/services"
)

func TestResourceService_ListComments(t *testing.T) {
	ctx := context.Background()
	comments := mocks.NewMockCommentBackend()
	svc := services.NewResourceService(comments, mocks.NewMockExportBackend(), mocks.NewMockTeamBackend(), flagsWith(), testLogger())

	open := existingComment("Button misaligned", 1)
	done := existingComment("Typo in footer", 2)
	done.Status = domain.CommentStatusResolved
	comments.On("ListComments", mock.Anything, testResource).Return([]domain.Comment{open, done}, nil)

	t.Run("filters by status", func(t *testing.T) {
		got, err := svc.ListComments(ctx, testResource, domain.FilterConfig{
			Statuses: []domain.CommentStatus{domain.CommentStatusResolved},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, done.ID, got[0].ID)
	})

	t.Run("search is case-insensitive", func(t *testing.T) {
		got, err := svc.ListComments(ctx, testResource, domain.FilterConfig{Search: "BUTTON"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, open.ID, got[0].ID)
	})

	t.Run("requires a resource", func(t *testing.T) {
		_, err := svc.ListComments(ctx, " ", domain.FilterConfig{})
		assert.ErrorIs(t, err, apperrors.ErrResourceIDRequired)
	})
}

func TestResourceService_Exports(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled export never reaches the backend", func(t *testing.T) {
		exports := mocks.NewMockExportBackend()
		svc := services.NewResourceService(mocks.NewMockCommentBackend(), exports, mocks.NewMockTeamBackend(), flagsWith(), testLogger())

		_, err := svc.ExportHistory(ctx, testResource)
		assert.ErrorIs(t, err, apperrors.ErrFeatureDisabled)
		_, err = svc.ScheduleExport(ctx, ports.ScheduleExportParams{
			Options: domain.ExportOptions{ResourceID: testResource},
			RunAt:   time.Now().Add(time.Hour),
		})
		assert.ErrorIs(t, err, apperrors.ErrFeatureDisabled)

		exports.AssertNotCalled(t, "GetExportHistory")
		exports.AssertNotCalled(t, "ScheduleExport")
	})

	t.Run("schedule validates and defaults the format", func(t *testing.T) {
		exports := mocks.NewMockExportBackend()
		svc := services.NewResourceService(mocks.NewMockCommentBackend(), exports, mocks.NewMockTeamBackend(), flagsWith(domain.FeatureExport), testLogger())
		requester := uuid.New()

		_, err := svc.ScheduleExport(ctx, ports.ScheduleExportParams{
			Options: domain.ExportOptions{ResourceID: testResource},
			RunAt:   time.Now().Add(-time.Minute),
		})
		assert.ErrorIs(t, err, apperrors.ErrScheduleInPast)

		exports.On("ScheduleExport", mock.Anything, mock.MatchedBy(func(s domain.ExportSchedule) bool {
			return s.Options.Format == domain.ExportCSV && s.RequestedBy == requester && s.ID != ""
		})).Return(&domain.ExportSchedule{ID: "sch-1"}, nil)

		schedule, err := svc.ScheduleExport(ctx, ports.ScheduleExportParams{
			Options:     domain.ExportOptions{ResourceID: testResource},
			RunAt:       time.Now().Add(time.Hour),
			RequestedBy: requester,
		})
		require.NoError(t, err)
		assert.Equal(t, "sch-1", schedule.ID)
	})
}

func TestResourceService_Team(t *testing.T) {
	ctx := context.Background()

	t.Run("invite normalises the email and defaults the role", func(t *testing.T) {
		team := mocks.NewMockTeamBackend()
		svc := services.NewResourceService(mocks.NewMockCommentBackend(), mocks.NewMockExportBackend(), team, flagsWith(), testLogger())
		actor := uuid.New()

		team.On("InviteUser", mock.Anything, domain.Invitation{
			ResourceID: testResource,
			Email:      "bo@example.com",
			Role:       "member",
			InvitedBy:  actor,
		}).Return(nil)

		err := svc.InviteUser(ctx, ports.InviteUserParams{ResourceID: testResource, Email: " Bo@Example.com ", ActorID: actor})

		require.NoError(t, err)
		team.AssertExpectations(t)
	})

	t.Run("invite rejects bad input", func(t *testing.T) {
		team := mocks.NewMockTeamBackend()
		svc := services.NewResourceService(mocks.NewMockCommentBackend(), mocks.NewMockExportBackend(), team, flagsWith(), testLogger())

		err := svc.InviteUser(ctx, ports.InviteUserParams{Email: "not-an-email"})

		var verrs *apperrors.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Contains(t, verrs.Errors, "email")
		assert.Contains(t, verrs.Errors, "resourceId")
		team.AssertNotCalled(t, "InviteUser")
	})

	t.Run("users cannot remove themselves", func(t *testing.T) {
		team := mocks.NewMockTeamBackend()
		svc := services.NewResourceService(mocks.NewMockCommentBackend(), mocks.NewMockExportBackend(), team, flagsWith(), testLogger())
		me := uuid.New()

		err := svc.RemoveUser(ctx, ports.RemoveUserParams{ResourceID: testResource, UserID: me, ActorID: me})

		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		team.AssertNotCalled(t, "RemoveUser")
	})

	t.Run("features", func(t *testing.T) {
		svc := services.NewResourceService(mocks.NewMockCommentBackend(), mocks.NewMockExportBackend(), mocks.NewMockTeamBackend(), flagsWith(domain.FeatureExport), testLogger())

		features := svc.Features(ctx)

		assert.True(t, features[domain.FeatureExport])
		assert.False(t, features[domain.FeatureAIInsights])
	})
}

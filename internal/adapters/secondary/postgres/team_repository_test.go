package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

func TestTeamRepository_Presence(t *testing.T) {
	ctx := context.Background()
	repo := NewTeamRepository(testPool)
	comments := NewCommentRepository(testPool)
	resourceID := newResource()

	ana := addComment(t, comments, resourceID, "hello").Author.ID
	bo := uuid.New()

	require.NoError(t, repo.UpdateUserPresence(ctx, resourceID, ana, domain.PresenceOnline))
	require.NoError(t, repo.UpdateUserPresence(ctx, resourceID, bo, domain.PresenceOnline))

	participants, err := repo.ListParticipants(ctx, resourceID)
	require.NoError(t, err)
	require.Len(t, participants, 2)

	names := map[uuid.UUID]string{}
	for _, p := range participants {
		names[p.UserID] = p.Name
	}
	assert.Equal(t, "Ana", names[ana])
	assert.Equal(t, "", names[bo])

	t.Run("offline users are not listed", func(t *testing.T) {
		require.NoError(t, repo.UpdateUserPresence(ctx, resourceID, bo, domain.PresenceOffline))

		participants, err := repo.ListParticipants(ctx, resourceID)
		require.NoError(t, err)
		require.Len(t, participants, 1)
		assert.Equal(t, ana, participants[0].UserID)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, repo.RemoveUser(ctx, resourceID, ana))
		assert.ErrorIs(t, repo.RemoveUser(ctx, resourceID, ana), apperrors.ErrNotFound)
	})
}

func TestTeamRepository_InviteUser(t *testing.T) {
	ctx := context.Background()
	repo := NewTeamRepository(testPool)
	resourceID := newResource()

	invite := domain.Invitation{ResourceID: resourceID, Email: "bo@example.com", Role: "member", InvitedBy: uuid.New()}
	require.NoError(t, repo.InviteUser(ctx, invite))

	invite.Role = "viewer"
	require.NoError(t, repo.InviteUser(ctx, invite), "re-inviting updates the role")

	var role string
	var count int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT role, COUNT(*) OVER () FROM invitations WHERE resource_id = $1`, resourceID).Scan(&role, &count))
	assert.Equal(t, "viewer", role)
	assert.Equal(t, 1, count)
}

func TestTransactionManager_RollsBack(t *testing.T) {
	ctx := context.Background()
	tm := NewTransactionManager(testPool)
	comments := NewCommentRepository(testPool)
	resourceID := newResource()

	err := tm.WithTransaction(ctx, func(ctx context.Context) error {
		comment, err := domain.NewComment(domain.CommentParams{
			ResourceID: resourceID,
			Content:    "never committed",
			Author:     domain.Author{ID: uuid.New(), Name: "Ana"},
		})
		require.NoError(t, err)
		_, err = comments.AddComment(ctx, *comment)
		require.NoError(t, err)
		return apperrors.ErrConflict
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	list, err := comments.ListComments(ctx, resourceID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

// newResource returns a resource id unique to the test.
func newResource() string {
	return "doc-" + uuid.NewString()
}

func addComment(t *testing.T, repo *CommentRepository, resourceID, content string) *domain.Comment {
	t.Helper()

	comment, err := domain.NewComment(domain.CommentParams{
		ResourceID: resourceID,
		Content:    content,
		Author:     domain.Author{ID: uuid.New(), Name: "Ana"},
	})
	require.NoError(t, err)

	saved, err := repo.AddComment(context.Background(), *comment)
	require.NoError(t, err)
	return saved
}

func TestCommentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	require.NotNil(t, testPool, "testPool is nil. TestMain may not have run.")
	repo := NewCommentRepository(testPool)
	resourceID := newResource()

	created := addComment(t, repo, resourceID, "Logo is blurry")
	assert.EqualValues(t, 1, created.Version)
	assert.Equal(t, domain.CommentStatusOpen, created.Status)
	assert.Equal(t, "Ana", created.Author.Name)

	t.Run("get", func(t *testing.T) {
		found, err := repo.GetComment(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Content, found.Content)
		assert.WithinDuration(t, created.CreatedAt, found.CreatedAt, time.Millisecond)
	})

	t.Run("update bumps the version", func(t *testing.T) {
		content := "Logo is blurry on retina"
		priority := domain.PriorityHigh
		updated, err := repo.UpdateComment(ctx, created.ID, domain.CommentPatch{Content: &content, Priority: &priority})
		require.NoError(t, err)

		assert.EqualValues(t, 2, updated.Version)
		assert.Equal(t, content, updated.Content)
		assert.Equal(t, domain.PriorityHigh, updated.Priority)
		assert.Equal(t, domain.CommentStatusOpen, updated.Status, "unset fields are kept")
	})

	t.Run("assign and resolve", func(t *testing.T) {
		assignee := uuid.New()
		assigned, err := repo.AssignComment(ctx, created.ID, assignee)
		require.NoError(t, err)
		require.NotNil(t, assigned.Assignee)
		assert.Equal(t, assignee, *assigned.Assignee)

		resolved, err := repo.ResolveComment(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, resolved.IsResolved())
		assert.Equal(t, assignee, *resolved.Assignee)
		assert.EqualValues(t, 4, resolved.Version)
	})

	t.Run("delete leaves an ordered tombstone", func(t *testing.T) {
		version, err := repo.DeleteComment(ctx, created.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 5, version)

		_, err = repo.GetComment(ctx, created.ID)
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)

		_, err = repo.DeleteComment(ctx, created.ID)
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)

		status := domain.CommentStatusOpen
		_, err = repo.UpdateComment(ctx, created.ID, domain.CommentPatch{Status: &status})
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)
	})
}

func TestCommentRepository_ListComments(t *testing.T) {
	ctx := context.Background()
	repo := NewCommentRepository(testPool)
	resourceID := newResource()

	first := addComment(t, repo, resourceID, "first")
	second := addComment(t, repo, resourceID, "second")
	gone := addComment(t, repo, resourceID, "gone")
	addComment(t, repo, newResource(), "elsewhere")

	_, err := repo.DeleteComment(ctx, gone.ID)
	require.NoError(t, err)

	comments, err := repo.ListComments(ctx, resourceID)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, ids)

	empty, err := repo.ListComments(ctx, newResource())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCommentRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewCommentRepository(testPool)

	_, err := repo.GetComment(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)

	_, err = repo.ResolveComment(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)
}

func TestCommentRepository_PinpointThreads(t *testing.T) {
	ctx := context.Background()
	repo := NewCommentRepository(testPool)
	resourceID := newResource()
	author := domain.Author{ID: uuid.New(), Name: "Ana"}
	mentioned := uuid.New()

	x, y := 33.3, 71.0
	pinned, err := domain.NewComment(domain.CommentParams{
		ResourceID: resourceID,
		Content:    "Crop the hero image",
		Author:     author,
		MediaType:  domain.MediaImage,
		Position:   &domain.Position{X: &x, Y: &y},
		Mentions:   []uuid.UUID{mentioned},
	})
	require.NoError(t, err)
	root, err := repo.AddComment(ctx, *pinned)
	require.NoError(t, err)

	t.Run("anchor and mentions round trip", func(t *testing.T) {
		found, err := repo.GetComment(ctx, root.ID)
		require.NoError(t, err)

		assert.Equal(t, domain.MediaImage, found.MediaType)
		require.NotNil(t, found.Position)
		assert.InDelta(t, 33.3, *found.Position.X, 1e-9)
		assert.InDelta(t, 71.0, *found.Position.Y, 1e-9)
		assert.Equal(t, []uuid.UUID{mentioned}, found.Mentions)
		assert.Nil(t, found.ParentID)
		assert.Empty(t, found.Reactions)
	})

	reply := func(parent uuid.UUID, content string) (*domain.Comment, error) {
		c, err := domain.NewComment(domain.CommentParams{
			ResourceID: resourceID,
			Content:    content,
			Author:     domain.Author{ID: uuid.New(), Name: "Bo"},
			ParentID:   &parent,
		})
		require.NoError(t, err)
		return repo.AddComment(ctx, *c)
	}

	answer, err := reply(root.ID, "Cropped in v2")
	require.NoError(t, err)

	t.Run("reply is stored under its parent", func(t *testing.T) {
		require.NotNil(t, answer.ParentID)
		assert.Equal(t, root.ID, *answer.ParentID)
		assert.Nil(t, answer.Position)
	})

	t.Run("replies need a live top-level parent", func(t *testing.T) {
		_, err := reply(uuid.New(), "orphan")
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)

		_, err = reply(answer.ID, "nested")
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)
	})

	t.Run("reactions bump the version", func(t *testing.T) {
		user := uuid.New()
		like := domain.Reaction{UserID: user, Type: domain.ReactionLike, CreatedAt: time.Now().UTC()}

		liked, err := repo.AddReaction(ctx, root.ID, like)
		require.NoError(t, err)
		assert.EqualValues(t, 2, liked.Version)
		require.Len(t, liked.Reactions, 1)
		assert.Equal(t, user, liked.Reactions[0].UserID)
		assert.Equal(t, domain.ReactionLike, liked.Reactions[0].Type)

		again, err := repo.AddReaction(ctx, root.ID, like)
		require.NoError(t, err)
		assert.EqualValues(t, 3, again.Version)
		assert.Len(t, again.Reactions, 1, "a user holds each reaction once")

		removed, err := repo.RemoveReaction(ctx, root.ID, user, domain.ReactionLike)
		require.NoError(t, err)
		assert.EqualValues(t, 4, removed.Version)
		assert.Empty(t, removed.Reactions)

		_, err = repo.AddReaction(ctx, uuid.New(), like)
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)
	})

	t.Run("review statuses are stored", func(t *testing.T) {
		status := domain.CommentStatusNeedsRevision
		updated, err := repo.UpdateComment(ctx, root.ID, domain.CommentPatch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, domain.CommentStatusNeedsRevision, updated.Status)

		status = domain.CommentStatusApproved
		updated, err = repo.UpdateComment(ctx, root.ID, domain.CommentPatch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, domain.CommentStatusApproved, updated.Status)
	})

	t.Run("deleting the root removes the thread", func(t *testing.T) {
		_, err := repo.DeleteComment(ctx, root.ID)
		require.NoError(t, err)

		_, err = repo.GetComment(ctx, answer.ID)
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)

		_, err = repo.AddReaction(ctx, root.ID, domain.Reaction{UserID: uuid.New(), Type: domain.ReactionLove, CreatedAt: time.Now().UTC()})
		assert.ErrorIs(t, err, apperrors.ErrCommentNotFound)

		comments, err := repo.ListComments(ctx, resourceID)
		require.NoError(t, err)
		assert.Empty(t, comments)
	})
}

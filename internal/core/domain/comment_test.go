package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

func ptr[T any](v T) *T { return &v }

func TestCommentStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status domain.CommentStatus
		want   bool
	}{
		{"open is valid", domain.CommentStatusOpen, true},
		{"in_progress is valid", domain.CommentStatusInProgress, true},
		{"needs_revision is valid", domain.CommentStatusNeedsRevision, true},
		{"approved is valid", domain.CommentStatusApproved, true},
		{"resolved is valid", domain.CommentStatusResolved, true},
		{"empty is invalid", domain.CommentStatus(""), false},
		{"uppercase is invalid", domain.CommentStatus("OPEN"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestPosition_Validate(t *testing.T) {
	tests := []struct {
		name     string
		media    domain.MediaType
		position domain.Position
		wantErr  error
	}{
		{"image pin", domain.MediaImage, domain.Position{X: ptr(12.5), Y: ptr(100.0)}, nil},
		{"image pin past the edge", domain.MediaImage, domain.Position{X: ptr(101.0), Y: ptr(5.0)}, apperrors.ErrInvalidPosition},
		{"image pin missing y", domain.MediaImage, domain.Position{X: ptr(5.0)}, apperrors.ErrInvalidPosition},
		{"video timestamp", domain.MediaVideo, domain.Position{Timestamp: ptr(93.2)}, nil},
		{"audio before the start", domain.MediaAudio, domain.Position{Timestamp: ptr(-1.0)}, apperrors.ErrInvalidPosition},
		{"code line", domain.MediaCode, domain.Position{Line: ptr(12), Character: ptr(0)}, nil},
		{"code line zero", domain.MediaCode, domain.Position{Line: ptr(0)}, apperrors.ErrInvalidPosition},
		{"doc selection", domain.MediaDoc, domain.Position{TextSelection: &domain.TextSelection{Start: 4, End: 9, Text: "hello"}}, nil},
		{"doc element", domain.MediaDoc, domain.Position{ElementID: "para-3"}, nil},
		{"doc reversed selection", domain.MediaDoc, domain.Position{TextSelection: &domain.TextSelection{Start: 9, End: 4}}, apperrors.ErrInvalidPosition},
		{"doc without anchor", domain.MediaDoc, domain.Position{}, apperrors.ErrInvalidPosition},
		{"unknown media", domain.MediaType("3d"), domain.Position{X: ptr(1.0), Y: ptr(1.0)}, apperrors.ErrInvalidMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.position.Validate(tt.media)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewComment(t *testing.T) {
	author := domain.Author{ID: uuid.New(), Name: "Ana"}
	parent := uuid.New()

	tests := []struct {
		name       string
		params     domain.CommentParams
		errorField string
	}{
		{
			name:   "plain comment",
			params: domain.CommentParams{ResourceID: "doc-1", Content: "Looks good", Author: author},
		},
		{
			name: "pinned to an image",
			params: domain.CommentParams{
				ResourceID: "doc-1", Content: "Logo", Author: author,
				MediaType: domain.MediaImage, Position: &domain.Position{X: ptr(50.0), Y: ptr(50.0)},
			},
		},
		{
			name: "position outside the image",
			params: domain.CommentParams{
				ResourceID: "doc-1", Content: "Logo", Author: author,
				MediaType: domain.MediaImage, Position: &domain.Position{X: ptr(-3.0), Y: ptr(50.0)},
			},
			errorField: "position",
		},
		{
			name: "position without a media type",
			params: domain.CommentParams{
				ResourceID: "doc-1", Content: "Logo", Author: author,
				Position: &domain.Position{X: ptr(5.0), Y: ptr(5.0)},
			},
			errorField: "mediaType",
		},
		{
			name: "reply with a position",
			params: domain.CommentParams{
				ResourceID: "doc-1", Content: "Agreed", Author: author, ParentID: &parent,
				MediaType: domain.MediaCode, Position: &domain.Position{Line: ptr(3)},
			},
			errorField: "position",
		},
		{
			name: "unknown media type",
			params: domain.CommentParams{
				ResourceID: "doc-1", Content: "Logo", Author: author, MediaType: "hologram",
			},
			errorField: "mediaType",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comment, err := domain.NewComment(tt.params)
			if tt.errorField == "" {
				require.NoError(t, err)
				assert.Equal(t, domain.CommentStatusOpen, comment.Status)
				assert.Equal(t, tt.params.MediaType, comment.MediaType)
				return
			}

			require.Error(t, err)
			var validationErrs *apperrors.ValidationErrors
			require.ErrorAs(t, err, &validationErrs)
			assert.Contains(t, validationErrs.Errors, tt.errorField)
		})
	}

	t.Run("mentions are deduplicated", func(t *testing.T) {
		bo := uuid.New()
		comment, err := domain.NewComment(domain.CommentParams{
			ResourceID: "doc-1", Content: "@bo look", Author: author,
			Mentions: []uuid.UUID{bo, uuid.Nil, bo},
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{bo}, comment.Mentions)
		assert.True(t, comment.MentionsUser(bo))
	})

	t.Run("too many mentions", func(t *testing.T) {
		mentions := make([]uuid.UUID, domain.MaxMentions+1)
		for i := range mentions {
			mentions[i] = uuid.New()
		}
		_, err := domain.NewComment(domain.CommentParams{
			ResourceID: "doc-1", Content: "everyone", Author: author, Mentions: mentions,
		})
		var validationErrs *apperrors.ValidationErrors
		require.ErrorAs(t, err, &validationErrs)
		assert.Contains(t, validationErrs.Errors, "mentions")
	})
}

func TestComment_Reactions(t *testing.T) {
	user := uuid.New()
	base := domain.Comment{ID: uuid.New()}
	like := domain.Reaction{UserID: user, Type: domain.ReactionLike}

	liked := base.WithReaction(like)
	require.Len(t, liked.Reactions, 1)
	assert.Empty(t, base.Reactions, "receiver is not modified")

	again := liked.WithReaction(like)
	assert.Len(t, again.Reactions, 1, "a user holds each reaction once")

	both := liked.WithReaction(domain.Reaction{UserID: user, Type: domain.ReactionApprove})
	assert.Len(t, both.Reactions, 2)

	unliked := both.WithoutReaction(user, domain.ReactionLike)
	require.Len(t, unliked.Reactions, 1)
	assert.Equal(t, domain.ReactionApprove, unliked.Reactions[0].Type)
	assert.Len(t, both.Reactions, 2, "receiver is not modified")
}

func TestEventCodec_CommentPayloads(t *testing.T) {
	comment := domain.Comment{
		ID:        uuid.New(),
		Content:   "Done",
		Status:    domain.CommentStatusResolved,
		MediaType: domain.MediaVideo,
		Position:  &domain.Position{Timestamp: ptr(12.0)},
		Version:   3,
	}

	t.Run("resolved", func(t *testing.T) {
		data, err := domain.EncodeEvent(domain.NewEvent(domain.CommentResolved{Comment: comment}))
		require.NoError(t, err)

		event, err := domain.DecodeEvent(data)
		require.NoError(t, err)
		assert.Equal(t, domain.EventCommentResolved, event.Type)

		payload, ok := event.Payload.(domain.CommentResolved)
		require.True(t, ok)
		assert.True(t, payload.Comment.IsResolved())
		assert.Equal(t, 12.0, *payload.Comment.Position.Timestamp)
	})

	t.Run("reacted", func(t *testing.T) {
		reaction := domain.Reaction{UserID: uuid.New(), Type: domain.ReactionLove}
		data, err := domain.EncodeEvent(domain.NewEvent(domain.CommentReacted{
			Comment:  comment.WithReaction(reaction),
			Reaction: reaction,
		}))
		require.NoError(t, err)

		event, err := domain.DecodeEvent(data)
		require.NoError(t, err)

		got, ok := domain.CommentFromPayload(event.Payload)
		require.True(t, ok)
		assert.True(t, got.HasReaction(reaction.UserID, domain.ReactionLove))
	})

	t.Run("replied", func(t *testing.T) {
		parent := uuid.New()
		reply := domain.Comment{ID: uuid.New(), Content: "On it", ParentID: &parent, Version: 1}
		data, err := domain.EncodeEvent(domain.NewEvent(domain.CommentReplied{Comment: reply}))
		require.NoError(t, err)

		event, err := domain.DecodeEvent(data)
		require.NoError(t, err)

		got, ok := domain.CommentFromPayload(event.Payload)
		require.True(t, ok)
		assert.True(t, got.IsReply())
		assert.Equal(t, parent, *got.ParentID)
	})
}

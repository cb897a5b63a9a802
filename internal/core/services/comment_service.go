package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// CommentServiceParams wires a CommentService.
type CommentServiceParams struct {
	Backend    ports.CommentBackend
	AI         ports.AIBackend
	Flags      ports.FeatureFlags
	Mutator    *Mutator
	Store      *CommentStore
	Publisher  ports.EventPublisher
	Subscriber ports.EventSubscriber
	Origin     string
	ResourceID string
	Author     domain.Author
	Logger     *slog.Logger
}

// CreateCommentParams defines the input for creating a comment or a reply.
// Replies ignore MediaType and must leave Position nil.
type CreateCommentParams struct {
	Content   string
	Priority  domain.Priority
	Assignee  *uuid.UUID
	MediaType domain.MediaType
	Position  *domain.Position
	Mentions  []uuid.UUID
}

// CommentService owns a session's view of a resource's comments. Writes are
// optimistic and go through the Mutator; changes made by other sessions
// arrive as comment events on the bus.
type CommentService struct {
	backend    ports.CommentBackend
	ai         ports.AIBackend
	flags      ports.FeatureFlags
	mutator    *Mutator
	store      *CommentStore
	publisher  ports.EventPublisher
	origin     string
	resourceID string
	author     domain.Author
	logger     *slog.Logger

	unsubscribe []func()
}

// NewCommentService creates a CommentService and subscribes it to remote
// comment changes.
func NewCommentService(params CommentServiceParams) *CommentService {
	store := params.Store
	if store == nil {
		store = NewCommentStore()
	}

	s := &CommentService{
		backend:    params.Backend,
		ai:         params.AI,
		flags:      params.Flags,
		mutator:    params.Mutator,
		store:      store,
		publisher:  params.Publisher,
		origin:     params.Origin,
		resourceID: params.ResourceID,
		author:     params.Author,
		logger:     params.Logger.With("component", "comment_service", "resource_id", params.ResourceID),
	}

	if params.Subscriber != nil {
		for _, t := range []domain.EventType{
			domain.EventCommentCreated,
			domain.EventCommentUpdated,
			domain.EventCommentDeleted,
			domain.EventCommentResolved,
			domain.EventCommentAssigned,
			domain.EventCommentReplied,
			domain.EventCommentReacted,
		} {
			s.unsubscribe = append(s.unsubscribe, params.Subscriber.Subscribe(t, s.handleRemote))
		}
	}

	return s
}

// LoadComments fetches the resource's comments from the backend.
func (s *CommentService) LoadComments(ctx context.Context) ([]domain.Comment, error) {
	comments, err := s.backend.ListComments(ctx, s.resourceID)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	s.store.Reset(comments)
	return s.store.List(domain.FilterConfig{}), nil
}

// CreateComment adds a comment optimistically. The comment is visible
// locally until the backend rejects it.
func (s *CommentService) CreateComment(ctx context.Context, params CreateCommentParams) (*domain.Comment, error) {
	comment, err := domain.NewComment(domain.CommentParams{
		ResourceID: s.resourceID,
		Content:    params.Content,
		Author:     s.author,
		Priority:   params.Priority,
		Assignee:   params.Assignee,
		MediaType:  params.MediaType,
		Position:   params.Position,
		Mentions:   params.Mentions,
	})
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, *comment, "create",
		func(c *domain.Comment) domain.EventPayload { return domain.CommentCreated{Comment: *c} })
}

// ReplyToComment adds a reply to parentID's thread optimistically. A reply
// to a reply joins the thread of its root comment.
func (s *CommentService) ReplyToComment(ctx context.Context, parentID uuid.UUID, params CreateCommentParams) (*domain.Comment, error) {
	parent, ok := s.store.Get(parentID)
	if !ok {
		return nil, apperrors.ErrCommentNotFound
	}
	root := parent.ID
	if parent.ParentID != nil {
		root = *parent.ParentID
	}

	comment, err := domain.NewComment(domain.CommentParams{
		ResourceID: s.resourceID,
		Content:    params.Content,
		Author:     s.author,
		Priority:   params.Priority,
		Assignee:   params.Assignee,
		Position:   params.Position,
		ParentID:   &root,
		Mentions:   params.Mentions,
	})
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, *comment, "reply",
		func(c *domain.Comment) domain.EventPayload { return domain.CommentReplied{Comment: *c} })
}

func (s *CommentService) insert(
	ctx context.Context,
	draft domain.Comment,
	operation string,
	event func(*domain.Comment) domain.EventPayload,
) (*domain.Comment, error) {
	return RunMutation(ctx, s.mutator, Mutation[*domain.Comment]{
		EntityID:  draft.ID.String(),
		Operation: operation,
		Apply:     func(rev int64) { s.store.applyLocal(draft, rev) },
		Revert:    func(rev int64) { s.store.revert(draft.ID, rev) },
		Do: func(ctx context.Context) (*domain.Comment, error) {
			return s.backend.AddComment(ctx, draft)
		},
		Commit: func(c *domain.Comment, rev int64) { s.store.commit(*c, rev) },
		Event:  event,
	})
}

// UpdateComment applies patch optimistically.
func (s *CommentService) UpdateComment(ctx context.Context, id uuid.UUID, patch domain.CommentPatch) (*domain.Comment, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.mutateExisting(ctx, id, "update",
		func(c domain.Comment) domain.Comment { return c.Apply(patch, time.Now().UTC()) },
		func(ctx context.Context) (*domain.Comment, error) { return s.backend.UpdateComment(ctx, id, patch) },
		func(c *domain.Comment) domain.EventPayload { return domain.CommentUpdated{Comment: *c, Patch: patch} },
	)
}

// ResolveComment marks the comment resolved optimistically.
func (s *CommentService) ResolveComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	resolved := domain.CommentStatusResolved
	patch := domain.CommentPatch{Status: &resolved}
	return s.mutateExisting(ctx, id, "resolve",
		func(c domain.Comment) domain.Comment { return c.Apply(patch, time.Now().UTC()) },
		func(ctx context.Context) (*domain.Comment, error) { return s.backend.ResolveComment(ctx, id) },
		func(c *domain.Comment) domain.EventPayload { return domain.CommentResolved{Comment: *c} },
	)
}

// AssignComment sets the assignee optimistically.
func (s *CommentService) AssignComment(ctx context.Context, id, assignee uuid.UUID) (*domain.Comment, error) {
	if assignee == uuid.Nil {
		return nil, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "assignee is required")
	}
	patch := domain.CommentPatch{Assignee: &assignee}
	return s.mutateExisting(ctx, id, "assign",
		func(c domain.Comment) domain.Comment { return c.Apply(patch, time.Now().UTC()) },
		func(ctx context.Context) (*domain.Comment, error) { return s.backend.AssignComment(ctx, id, assignee) },
		func(c *domain.Comment) domain.EventPayload { return domain.CommentAssigned{Comment: *c, Assignee: assignee} },
	)
}

// AddReaction records the session user's reaction optimistically.
func (s *CommentService) AddReaction(ctx context.Context, id uuid.UUID, reactionType domain.ReactionType) (*domain.Comment, error) {
	if !reactionType.IsValid() {
		return nil, apperrors.ErrInvalidReaction
	}
	reaction := domain.Reaction{UserID: s.author.ID, Type: reactionType, CreatedAt: time.Now().UTC()}
	return s.mutateExisting(ctx, id, "react",
		func(c domain.Comment) domain.Comment { return c.WithReaction(reaction) },
		func(ctx context.Context) (*domain.Comment, error) { return s.backend.AddReaction(ctx, id, reaction) },
		func(c *domain.Comment) domain.EventPayload { return domain.CommentReacted{Comment: *c, Reaction: reaction} },
	)
}

// RemoveReaction withdraws the session user's reaction optimistically.
func (s *CommentService) RemoveReaction(ctx context.Context, id uuid.UUID, reactionType domain.ReactionType) (*domain.Comment, error) {
	if !reactionType.IsValid() {
		return nil, apperrors.ErrInvalidReaction
	}
	reaction := domain.Reaction{UserID: s.author.ID, Type: reactionType}
	return s.mutateExisting(ctx, id, "unreact",
		func(c domain.Comment) domain.Comment { return c.WithoutReaction(s.author.ID, reactionType) },
		func(ctx context.Context) (*domain.Comment, error) {
			return s.backend.RemoveReaction(ctx, id, s.author.ID, reactionType)
		},
		func(c *domain.Comment) domain.EventPayload {
			return domain.CommentReacted{Comment: *c, Reaction: reaction, Removed: true}
		},
	)
}

// DeleteComment removes the comment optimistically, together with its
// replies once the backend confirms. It reappears if the backend rejects
// the delete.
func (s *CommentService) DeleteComment(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.store.Get(id); !ok {
		return apperrors.ErrCommentNotFound
	}

	_, err := RunMutation(ctx, s.mutator, Mutation[int64]{
		EntityID:  id.String(),
		Operation: "delete",
		Apply:     func(rev int64) { s.store.update(id, rev, nil) },
		Revert:    func(rev int64) { s.store.revert(id, rev) },
		Do: func(ctx context.Context) (int64, error) {
			return s.backend.DeleteComment(ctx, id)
		},
		Commit: func(version int64, rev int64) { s.store.commitDelete(id, version, rev) },
		Event: func(version int64) domain.EventPayload {
			return domain.CommentDeleted{CommentID: id, ResourceID: s.resourceID, Version: version}
		},
	})
	return err
}

func (s *CommentService) mutateExisting(
	ctx context.Context,
	id uuid.UUID,
	operation string,
	apply func(domain.Comment) domain.Comment,
	do func(context.Context) (*domain.Comment, error),
	event func(*domain.Comment) domain.EventPayload,
) (*domain.Comment, error) {
	if _, ok := s.store.Get(id); !ok {
		return nil, apperrors.ErrCommentNotFound
	}

	return RunMutation(ctx, s.mutator, Mutation[*domain.Comment]{
		EntityID:  id.String(),
		Operation: operation,
		Apply:     func(rev int64) { s.store.update(id, rev, apply) },
		Revert:    func(rev int64) { s.store.revert(id, rev) },
		Do:        do,
		Commit:    func(c *domain.Comment, rev int64) { s.store.commit(*c, rev) },
		Event:     event,
	})
}

// Comments returns the visible comments matching filter.
func (s *CommentService) Comments(filter domain.FilterConfig) []domain.Comment {
	return s.store.List(filter)
}

// Replies returns the visible replies in parentID's thread, oldest first.
func (s *CommentService) Replies(parentID uuid.UUID) []domain.Comment {
	return s.store.Replies(parentID)
}

// Comment returns one visible comment.
func (s *CommentService) Comment(id uuid.UUID) (domain.Comment, bool) {
	return s.store.Get(id)
}

// IsUpdating reports whether a write on the comment is in flight.
func (s *CommentService) IsUpdating(id uuid.UUID) bool {
	return s.mutator.IsUpdating(id.String())
}

// AnalyzeComment asks the AI backend to analyse a comment.
func (s *CommentService) AnalyzeComment(ctx context.Context, id uuid.UUID) (*domain.CommentAnalysis, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureAIInsights); err != nil {
		return nil, err
	}
	comment, ok := s.store.Get(id)
	if !ok {
		return nil, apperrors.ErrCommentNotFound
	}

	return RunMutation(ctx, s.mutator, Mutation[*domain.CommentAnalysis]{
		EntityID:  id.String(),
		Operation: "analyze",
		Do: func(ctx context.Context) (*domain.CommentAnalysis, error) {
			return s.ai.AnalyzeComment(ctx, comment)
		},
		Event: func(a *domain.CommentAnalysis) domain.EventPayload {
			return domain.AnalysisCompleted{CommentID: id, Analysis: *a}
		},
	})
}

// GenerateSuggestions asks the AI backend for reply suggestions.
func (s *CommentService) GenerateSuggestions(ctx context.Context, id uuid.UUID) ([]string, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureAIInsights); err != nil {
		return nil, err
	}
	comment, ok := s.store.Get(id)
	if !ok {
		return nil, apperrors.ErrCommentNotFound
	}

	return RunMutation(ctx, s.mutator, Mutation[[]string]{
		EntityID:  id.String(),
		Operation: "suggest",
		Do: func(ctx context.Context) ([]string, error) {
			return s.ai.GenerateSuggestions(ctx, comment)
		},
		Event: func(suggestions []string) domain.EventPayload {
			return domain.SuggestionsReady{CommentID: id, Suggestions: suggestions}
		},
	})
}

// GetAIInsights aggregates AI analysis over the visible comments.
func (s *CommentService) GetAIInsights(ctx context.Context) (*domain.AIInsights, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureAIInsights); err != nil {
		return nil, err
	}

	insights, err := s.ai.GetAIInsights(ctx, s.resourceID, s.store.List(domain.FilterConfig{}))
	if err != nil {
		s.publisher.Publish(ctx, domain.NewEvent(domain.SystemError{
			EntityID:  s.resourceID,
			Operation: "insights",
			Message:   err.Error(),
		}))
		return nil, err
	}
	return insights, nil
}

// handleRemote applies comment events produced by other sessions.
func (s *CommentService) handleRemote(ctx context.Context, event domain.Event) error {
	if event.Meta(domain.MetaOrigin) == s.origin {
		return nil
	}
	if resource := event.Meta(domain.MetaResource); resource != "" && resource != s.resourceID {
		return nil
	}

	if deleted, ok := event.Payload.(domain.CommentDeleted); ok {
		if !s.store.applyRemoteDelete(deleted.CommentID, deleted.Version) {
			s.logger.DebugContext(ctx, "discarded stale remote delete", "comment_id", deleted.CommentID)
		}
		return nil
	}

	comment, ok := domain.CommentFromPayload(event.Payload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if !s.store.applyRemote(comment) {
		s.logger.DebugContext(ctx, "discarded stale remote comment",
			"comment_id", comment.ID,
			"version", comment.Version,
		)
	}
	return nil
}

// Close stops listening for remote changes.
func (s *CommentService) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
}

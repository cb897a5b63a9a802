package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

// MaxCommentContentLength bounds the size of a single comment body.
const MaxCommentContentLength = 10000

// CommentStatus represents the lifecycle state of a comment.
type CommentStatus string

const (
	CommentStatusOpen          CommentStatus = "open"
	CommentStatusInProgress    CommentStatus = "in_progress"
	CommentStatusNeedsRevision CommentStatus = "needs_revision"
	CommentStatusApproved      CommentStatus = "approved"
	CommentStatusResolved      CommentStatus = "resolved"
)

// IsValid reports whether s is a known status.
func (s CommentStatus) IsValid() bool {
	switch s {
	case CommentStatusOpen, CommentStatusInProgress, CommentStatusNeedsRevision,
		CommentStatusApproved, CommentStatusResolved:
		return true
	}
	return false
}

// UnresolvedStatuses lists every status except resolved.
func UnresolvedStatuses() []CommentStatus {
	return []CommentStatus{CommentStatusOpen, CommentStatusInProgress, CommentStatusNeedsRevision, CommentStatusApproved}
}

// Priority is shared by comments and notifications.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AllPriorities lists every priority from most to least pressing.
func AllPriorities() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Author identifies the user who wrote a comment.
type Author struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Comment is the client view model of a pinpoint comment. Version is
// assigned by the backend and grows on every persisted change.
//
// Top-level comments may be pinned to a Position inside a resource of
// MediaType. Replies carry ParentID and no position; threads are one level
// deep.
type Comment struct {
	ID         uuid.UUID     `json:"id"`
	ResourceID string        `json:"resourceId"`
	Content    string        `json:"content"`
	Author     Author        `json:"author"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	Status     CommentStatus `json:"status"`
	Priority   Priority      `json:"priority"`
	Assignee   *uuid.UUID    `json:"assignee,omitempty"`
	MediaType  MediaType     `json:"mediaType,omitempty"`
	Position   *Position     `json:"position,omitempty"`
	ParentID   *uuid.UUID    `json:"parentId,omitempty"`
	Mentions   []uuid.UUID   `json:"mentions,omitempty"`
	Reactions  []Reaction    `json:"reactions,omitempty"`
	Version    int64         `json:"version"`
}

// CommentParams holds the input for NewComment.
type CommentParams struct {
	ResourceID string
	Content    string
	Author     Author
	Priority   Priority
	Assignee   *uuid.UUID
	MediaType  MediaType
	Position   *Position
	ParentID   *uuid.UUID
	Mentions   []uuid.UUID
}

// NewComment validates params and builds an open comment with a fresh id.
func NewComment(params CommentParams) (*Comment, error) {
	errs := apperrors.NewValidationErrors()

	content := strings.TrimSpace(params.Content)
	switch {
	case content == "":
		errs.Add("content", apperrors.ErrCommentContentRequired.Error())
	case len(content) > MaxCommentContentLength:
		errs.Add("content", apperrors.ErrCommentContentTooLong.Error())
	}
	if strings.TrimSpace(params.ResourceID) == "" {
		errs.Add("resourceId", apperrors.ErrResourceIDRequired.Error())
	}
	if params.Author.ID == uuid.Nil {
		errs.Add("author", apperrors.ErrAuthorRequired.Error())
	}

	priority := params.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.IsValid() {
		errs.Add("priority", apperrors.ErrInvalidPriority.Error())
	}

	if params.MediaType != "" && !params.MediaType.IsValid() {
		errs.Add("mediaType", apperrors.ErrInvalidMediaType.Error())
	}
	if params.Position != nil {
		switch {
		case params.ParentID != nil:
			errs.Add("position", apperrors.ErrReplyPosition.Error())
		case params.MediaType == "":
			errs.Add("mediaType", apperrors.ErrInvalidMediaType.Error())
		case params.MediaType.IsValid():
			if err := params.Position.Validate(params.MediaType); err != nil {
				errs.Add("position", err.Error())
			}
		}
	}

	mentions := normalizeMentions(params.Mentions)
	if len(mentions) > MaxMentions {
		errs.Add("mentions", apperrors.ErrTooManyMentions.Error())
	}

	if errs.HasErrors() {
		return nil, errs
	}

	now := time.Now().UTC()
	return &Comment{
		ID:         uuid.New(),
		ResourceID: params.ResourceID,
		Content:    content,
		Author:     params.Author,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     CommentStatusOpen,
		Priority:   priority,
		Assignee:   params.Assignee,
		MediaType:  params.MediaType,
		Position:   params.Position,
		ParentID:   params.ParentID,
		Mentions:   mentions,
	}, nil
}

// CommentPatch describes a partial update. Nil fields are left unchanged.
type CommentPatch struct {
	Content  *string        `json:"content,omitempty"`
	Status   *CommentStatus `json:"status,omitempty"`
	Priority *Priority      `json:"priority,omitempty"`
	Assignee *uuid.UUID     `json:"assignee,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p CommentPatch) IsEmpty() bool {
	return p.Content == nil && p.Status == nil && p.Priority == nil && p.Assignee == nil
}

// Validate checks the fields that are set.
func (p CommentPatch) Validate() error {
	if p.IsEmpty() {
		return apperrors.ErrEmptyPatch
	}
	if p.Content != nil {
		content := strings.TrimSpace(*p.Content)
		if content == "" {
			return apperrors.ErrCommentContentRequired
		}
		if len(content) > MaxCommentContentLength {
			return apperrors.ErrCommentContentTooLong
		}
	}
	if p.Status != nil && !p.Status.IsValid() {
		return apperrors.ErrInvalidStatus
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		return apperrors.ErrInvalidPriority
	}
	return nil
}

// Apply returns a copy of c with the patch applied. The receiver is not modified.
func (c Comment) Apply(p CommentPatch, at time.Time) Comment {
	next := c
	if p.Content != nil {
		next.Content = strings.TrimSpace(*p.Content)
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	if p.Assignee != nil {
		assignee := *p.Assignee
		next.Assignee = &assignee
	}
	next.UpdatedAt = at
	return next
}

// IsResolved reports whether the comment has been resolved.
func (c Comment) IsResolved() bool {
	return c.Status == CommentStatusResolved
}

// Matches reports whether c satisfies every set criterion of f.
func (f FilterConfig) Matches(c Comment) bool {
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, c.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsValue(f.Priorities, c.Priority) {
		return false
	}
	if f.Assignee != nil && (c.Assignee == nil || *c.Assignee != *f.Assignee) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(c.Content), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

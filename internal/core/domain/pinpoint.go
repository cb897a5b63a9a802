package domain

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

// MaxMentions bounds how many users one comment can mention.
const MaxMentions = 20

// MediaType is the kind of resource a comment is pinned to.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaCode  MediaType = "code"
	MediaDoc   MediaType = "doc"
)

// IsValid reports whether m is a known media type.
func (m MediaType) IsValid() bool {
	switch m {
	case MediaImage, MediaVideo, MediaAudio, MediaCode, MediaDoc:
		return true
	}
	return false
}

// TextSelection is a character range inside a document.
type TextSelection struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Position anchors a comment inside its resource. Which fields apply depends
// on the media type: X and Y are percentages of an image, Timestamp is in
// seconds, Line and Character are 1-based and 0-based code coordinates.
type Position struct {
	X             *float64       `json:"x,omitempty"`
	Y             *float64       `json:"y,omitempty"`
	Timestamp     *float64       `json:"timestamp,omitempty"`
	Line          *int           `json:"line,omitempty"`
	Character     *int           `json:"character,omitempty"`
	TextSelection *TextSelection `json:"textSelection,omitempty"`
	ElementID     string         `json:"elementId,omitempty"`
}

// Validate checks that p carries the anchor media needs.
func (p Position) Validate(media MediaType) error {
	switch media {
	case MediaImage:
		if !percent(p.X) || !percent(p.Y) {
			return apperrors.ErrInvalidPosition
		}
	case MediaVideo, MediaAudio:
		if p.Timestamp == nil || !finite(*p.Timestamp) || *p.Timestamp < 0 {
			return apperrors.ErrInvalidPosition
		}
	case MediaCode:
		if p.Line == nil || *p.Line < 1 {
			return apperrors.ErrInvalidPosition
		}
		if p.Character != nil && *p.Character < 0 {
			return apperrors.ErrInvalidPosition
		}
	case MediaDoc:
		if p.TextSelection == nil && strings.TrimSpace(p.ElementID) == "" {
			return apperrors.ErrInvalidPosition
		}
		if sel := p.TextSelection; sel != nil && (sel.Start < 0 || sel.End < sel.Start) {
			return apperrors.ErrInvalidPosition
		}
	default:
		return apperrors.ErrInvalidMediaType
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func percent(v *float64) bool {
	return v != nil && finite(*v) && *v >= 0 && *v <= 100
}

// ReactionType is one of the fixed reactions a user can leave.
type ReactionType string

const (
	ReactionLike    ReactionType = "like"
	ReactionLove    ReactionType = "love"
	ReactionApprove ReactionType = "approve"
	ReactionReject  ReactionType = "reject"
)

// IsValid reports whether r is a known reaction.
func (r ReactionType) IsValid() bool {
	switch r {
	case ReactionLike, ReactionLove, ReactionApprove, ReactionReject:
		return true
	}
	return false
}

// Reaction is one user's reaction on a comment. A user holds each type at
// most once per comment.
type Reaction struct {
	UserID    uuid.UUID    `json:"userId"`
	Type      ReactionType `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
}

// HasReaction reports whether user already reacted with t.
func (c Comment) HasReaction(user uuid.UUID, t ReactionType) bool {
	return slices.ContainsFunc(c.Reactions, func(r Reaction) bool {
		return r.UserID == user && r.Type == t
	})
}

// WithReaction returns a copy of c carrying r. Adding a reaction the user
// already holds changes nothing.
func (c Comment) WithReaction(r Reaction) Comment {
	if c.HasReaction(r.UserID, r.Type) {
		return c
	}
	next := c
	next.Reactions = append(slices.Clone(c.Reactions), r)
	return next
}

// WithoutReaction returns a copy of c without user's reaction of type t.
func (c Comment) WithoutReaction(user uuid.UUID, t ReactionType) Comment {
	next := c
	next.Reactions = slices.DeleteFunc(slices.Clone(c.Reactions), func(r Reaction) bool {
		return r.UserID == user && r.Type == t
	})
	return next
}

// IsReply reports whether c answers another comment.
func (c Comment) IsReply() bool {
	return c.ParentID != nil
}

// MentionsUser reports whether c mentions user.
func (c Comment) MentionsUser(user uuid.UUID) bool {
	return slices.Contains(c.Mentions, user)
}

// normalizeMentions drops nil ids and duplicates, keeping first-seen order.
func normalizeMentions(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

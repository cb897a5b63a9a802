package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of a domain event.
type EventType string

const (
	EventCommentCreated  EventType = "comment.created"
	EventCommentUpdated  EventType = "comment.updated"
	EventCommentDeleted  EventType = "comment.deleted"
	EventCommentResolved EventType = "comment.resolved"
	EventCommentAssigned EventType = "comment.assigned"
	EventCommentReplied  EventType = "comment.replied"
	EventCommentReacted  EventType = "comment.reacted"

	EventCollaborationCursor EventType = "collaboration.cursor"
	EventCollaborationTyping EventType = "collaboration.typing"

	EventAIAnalysisComplete EventType = "ai.analysis.complete"
	EventAISuggestionsReady EventType = "ai.suggestions.ready"

	EventExportStarted  EventType = "export.started"
	EventExportProgress EventType = "export.progress"
	EventExportComplete EventType = "export.complete"
	EventExportFailed   EventType = "export.failed"

	EventNotificationCreated EventType = "notification.created"
	EventMetricsUpdated      EventType = "metrics.updated"

	EventSystemError EventType = "system.error"
)

// Shared reports whether events of this type are fanned out to the other
// participants of a resource. Everything else stays inside one session.
func (t EventType) Shared() bool {
	return strings.HasPrefix(string(t), "comment.") || strings.HasPrefix(string(t), "collaboration.")
}

// Metadata keys understood by the sync layer.
const (
	MetaOrigin   = "origin"   // session id that produced the event
	MetaInstance = "instance" // service instance that produced the event
	MetaResource = "resource" // resource the event belongs to
	MetaVersion  = "version"  // local mutation version
)

// EventPayload is the closed set of payloads an Event can carry. Every
// implementation lives in this file.
type EventPayload interface {
	EventType() EventType
	isEventPayload()
}

// Event is an immutable domain event. Use NewEvent and WithMeta to build one.
type Event struct {
	Type       EventType
	Payload    EventPayload
	Metadata   map[string]string
	OccurredAt time.Time
}

// NewEvent wraps payload, deriving the event type from it.
func NewEvent(payload EventPayload) Event {
	return Event{
		Type:       payload.EventType(),
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// WithMeta returns a copy of e with key set. The receiver's map is never written.
func (e Event) WithMeta(key, value string) Event {
	meta := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}

// Meta returns the metadata value for key, or "".
func (e Event) Meta(key string) string {
	return e.Metadata[key]
}

// --- comment payloads ---

type CommentCreated struct {
	Comment Comment `json:"comment"`
}

type CommentUpdated struct {
	Comment Comment      `json:"comment"`
	Patch   CommentPatch `json:"patch"`
}

type CommentDeleted struct {
	CommentID  uuid.UUID `json:"commentId"`
	ResourceID string    `json:"resourceId"`
	Version    int64     `json:"version"`
}

type CommentResolved struct {
	Comment Comment `json:"comment"`
}

type CommentAssigned struct {
	Comment  Comment   `json:"comment"`
	Assignee uuid.UUID `json:"assignee"`
}

// CommentReplied carries a new reply. Comment.ParentID names the thread.
type CommentReplied struct {
	Comment Comment `json:"comment"`
}

// CommentReacted carries the comment after a reaction was added, or removed
// when Removed is set.
type CommentReacted struct {
	Comment  Comment  `json:"comment"`
	Reaction Reaction `json:"reaction"`
	Removed  bool     `json:"removed,omitempty"`
}

// --- collaboration payloads ---

type CursorMoved struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
}

type TypingChanged struct {
	UserID    uuid.UUID  `json:"userId"`
	UserName  string     `json:"userName"`
	IsTyping  bool       `json:"isTyping"`
	CommentID *uuid.UUID `json:"commentId,omitempty"`
}

// --- AI payloads ---

type AnalysisCompleted struct {
	CommentID uuid.UUID       `json:"commentId"`
	Analysis  CommentAnalysis `json:"analysis"`
}

type SuggestionsReady struct {
	CommentID   uuid.UUID `json:"commentId"`
	Suggestions []string  `json:"suggestions"`
}

// --- export payloads ---

type ExportStarted struct {
	Options ExportOptions `json:"options"`
}

type ExportProgressed struct {
	Progress int `json:"progress"`
}

type ExportCompleted struct {
	ExportID string        `json:"exportId"`
	Options  ExportOptions `json:"options"`
}

type ExportFailed struct {
	Options ExportOptions `json:"options"`
	Message string        `json:"message"`
}

// --- session payloads ---

type NotificationCreated struct {
	Notification Notification `json:"notification"`
}

type MetricsUpdated struct {
	Snapshot MetricsSnapshot `json:"snapshot"`
}

// SystemError reports a failed remote operation on an entity.
type SystemError struct {
	EntityID  string `json:"entityId"`
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

func (CommentCreated) EventType() EventType { return EventCommentCreated }
func (CommentUpdated) EventType() EventType { return EventCommentUpdated }
func (CommentDeleted) EventType() EventType { return EventCommentDeleted }
func (CommentResolved) EventType() EventType { return EventCommentResolved }
func (CommentAssigned) EventType() EventType { return EventCommentAssigned }
func (CommentReplied) EventType() EventType { return EventCommentReplied }
func (CommentReacted) EventType() EventType { return EventCommentReacted }
func (CursorMoved) EventType() EventType { return EventCollaborationCursor }
func (TypingChanged) EventType() EventType { return EventCollaborationTyping }
func (AnalysisCompleted) EventType() EventType { return EventAIAnalysisComplete }
func (SuggestionsReady) EventType() EventType { return EventAISuggestionsReady }
func (ExportStarted) EventType() EventType { return EventExportStarted }
func (ExportProgressed) EventType() EventType { return EventExportProgress }
func (ExportCompleted) EventType() EventType { return EventExportComplete }
func (ExportFailed) EventType() EventType { return EventExportFailed }
func (NotificationCreated) EventType() EventType { return EventNotificationCreated }
func (MetricsUpdated) EventType() EventType { return EventMetricsUpdated }
func (SystemError) EventType() EventType { return EventSystemError }

func (CommentCreated) isEventPayload() {}
func (CommentUpdated) isEventPayload() {}
func (CommentDeleted) isEventPayload() {}
func (CommentResolved) isEventPayload() {}
func (CommentAssigned) isEventPayload() {}
func (CommentReplied) isEventPayload() {}
func (CommentReacted) isEventPayload() {}
func (CursorMoved) isEventPayload() {}
func (TypingChanged) isEventPayload() {}
func (AnalysisCompleted) isEventPayload() {}
func (SuggestionsReady) isEventPayload() {}
func (ExportStarted) isEventPayload() {}
func (ExportProgressed) isEventPayload() {}
func (ExportCompleted) isEventPayload() {}
func (ExportFailed) isEventPayload() {}
func (NotificationCreated) isEventPayload() {}
func (MetricsUpdated) isEventPayload() {}
func (SystemError) isEventPayload() {}

// CommentFromPayload extracts the comment carried by comment.* payloads that
// carry a full snapshot.
func CommentFromPayload(p EventPayload) (Comment, bool) {
	switch v := p.(type) {
	case CommentCreated:
		return v.Comment, true
	case CommentUpdated:
		return v.Comment, true
	case CommentResolved:
		return v.Comment, true
	case CommentAssigned:
		return v.Comment, true
	case CommentReplied:
		return v.Comment, true
	case CommentReacted:
		return v.Comment, true
	}
	return Comment{}, false
}

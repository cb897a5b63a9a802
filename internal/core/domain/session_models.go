package domain

import (
	"time"

	"github.com/google/uuid"
)

// Feature flag names consulted by the sync layer.
const (
	FeatureAIInsights    = "ai_insights"
	FeatureExport        = "export"
	FeatureCollaboration = "collaboration"
)

// Participant is a user taking part in a collaboration session.
type Participant struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

// PresenceCursor is the last known pointer position of a remote user.
type PresenceCursor struct {
	UserID    uuid.UUID `json:"userId"`
	UserName  string    `json:"userName"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresenceStatus is reported to the backend on join and leave.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Notification is an entry in a session's notification queue.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	Source    EventType `json:"source,omitempty"`
}

// ExportFormat is the rendering of an export artifact.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// IsValid reports whether f is a supported format.
func (f ExportFormat) IsValid() bool {
	return f == ExportCSV || f == ExportJSON
}

// ExportOptions selects which comments of a resource are exported.
type ExportOptions struct {
	ResourceID      string       `json:"resourceId"`
	Format          ExportFormat `json:"format"`
	IncludeResolved bool         `json:"includeResolved"`
}

// ExportStatus is the state of a session's export job.
type ExportStatus string

const (
	ExportStatusIdle    ExportStatus = "idle"
	ExportStatusRunning ExportStatus = "running"
	ExportStatusDone    ExportStatus = "done"
	ExportStatusFailed  ExportStatus = "failed"
)

// ExportJob is a snapshot of the export tracker.
type ExportJob struct {
	Options   ExportOptions `json:"options"`
	Progress  int           `json:"progress"`
	Status    ExportStatus  `json:"status"`
	ExportID  string        `json:"exportId,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}

// ExportRecord is a completed export kept by the backend.
type ExportRecord struct {
	ID           string        `json:"id"`
	Options      ExportOptions `json:"options"`
	ObjectKey    string        `json:"objectKey"`
	CommentCount int           `json:"commentCount"`
	RequestedBy  uuid.UUID     `json:"requestedBy"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ExportSchedule is a deferred export request.
type ExportSchedule struct {
	ID          string        `json:"id"`
	Options     ExportOptions `json:"options"`
	RunAt       time.Time     `json:"runAt"`
	RequestedBy uuid.UUID     `json:"requestedBy"`
}

// FilterConfig is a saved view over a resource's comments.
type FilterConfig struct {
	Statuses   []CommentStatus `json:"statuses,omitempty"`
	Priorities []Priority      `json:"priorities,omitempty"`
	Assignee   *uuid.UUID      `json:"assignee,omitempty"`
	Search     string          `json:"search,omitempty"`
}

// SavedFilter is a named FilterConfig.
type SavedFilter struct {
	Name    string       `json:"name"`
	Config  FilterConfig `json:"config"`
	SavedAt time.Time    `json:"savedAt"`
}

// CommentAnalysis is the AI backend's reading of a comment.
type CommentAnalysis struct {
	Sentiment   string   `json:"sentiment"`
	Category    string   `json:"category"`
	Urgency     Priority `json:"urgency"`
	Summary     string   `json:"summary"`
	ActionItems []string `json:"actionItems,omitempty"`
}

// AIInsights aggregates analysis across a resource.
type AIInsights struct {
	ResourceID     string           `json:"resourceId"`
	TotalComments  int              `json:"totalComments"`
	OpenComments   int              `json:"openComments"`
	ByCategory     map[string]int   `json:"byCategory"`
	BySentiment    map[string]int   `json:"bySentiment"`
	ByPriority     map[Priority]int `json:"byPriority"`
	Recommendation string           `json:"recommendation"`
}

// Invitation asks a user to join a resource.
type Invitation struct {
	ResourceID string    `json:"resourceId"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	InvitedBy  uuid.UUID `json:"invitedBy"`
}

// MetricsSnapshot is what a metrics provider reports on each poll.
type MetricsSnapshot struct {
	CollectedAt      time.Time `json:"collectedAt"`
	Comments         int       `json:"comments"`
	PendingMutations int       `json:"pendingMutations"`
	ActiveCursors    int       `json:"activeCursors"`
	TypingUsers      int       `json:"typingUsers"`
	UnreadNotices    int       `json:"unreadNotifications"`
	EventsPublished  uint64    `json:"eventsPublished"`
	HandlerFailures  uint64    `json:"handlerFailures"`
	ExportProgress   int       `json:"exportProgress"`
	RoomParticipants int       `json:"roomParticipants"`
}

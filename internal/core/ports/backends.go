package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
)

// CommentBackend is the read/write capability of the remote data backend.
// Every write returns the persisted state with its new version.
type CommentBackend interface {
	ListComments(ctx context.Context, resourceID string) ([]domain.Comment, error)
	GetComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error)
	AddComment(ctx context.Context, comment domain.Comment) (*domain.Comment, error)
	UpdateComment(ctx context.Context, id uuid.UUID, patch domain.CommentPatch) (*domain.Comment, error)
	// DeleteComment removes the comment and returns the version of the tombstone.
	DeleteComment(ctx context.Context, id uuid.UUID) (int64, error)
	ResolveComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error)
	AssignComment(ctx context.Context, id uuid.UUID, assignee uuid.UUID) (*domain.Comment, error)
	// AddReaction and RemoveReaction are idempotent and return the comment
	// with its full reaction list.
	AddReaction(ctx context.Context, id uuid.UUID, reaction domain.Reaction) (*domain.Comment, error)
	RemoveReaction(ctx context.Context, id uuid.UUID, userID uuid.UUID, reactionType domain.ReactionType) (*domain.Comment, error)
}

// ExportBackend produces and records comment exports.
type ExportBackend interface {
	ExportComments(ctx context.Context, options domain.ExportOptions, requestedBy uuid.UUID) (string, error)
	ScheduleExport(ctx context.Context, schedule domain.ExportSchedule) (*domain.ExportSchedule, error)
	GetExportHistory(ctx context.Context, resourceID string) ([]domain.ExportRecord, error)
}

// AIBackend analyses comment text.
type AIBackend interface {
	AnalyzeComment(ctx context.Context, comment domain.Comment) (*domain.CommentAnalysis, error)
	GenerateSuggestions(ctx context.Context, comment domain.Comment) ([]string, error)
	GetAIInsights(ctx context.Context, resourceID string, comments []domain.Comment) (*domain.AIInsights, error)
}

// TeamBackend manages who takes part in a resource.
type TeamBackend interface {
	UpdateUserPresence(ctx context.Context, resourceID string, userID uuid.UUID, status domain.PresenceStatus) error
	ListParticipants(ctx context.Context, resourceID string) ([]domain.Participant, error)
	InviteUser(ctx context.Context, invitation domain.Invitation) error
	RemoveUser(ctx context.Context, resourceID string, userID uuid.UUID) error
}

// FeatureFlags answers capability checks.
type FeatureFlags interface {
	IsFeatureEnabled(ctx context.Context, name string) bool
	Features(ctx context.Context) map[string]bool
}

// FilterStore is durable key/value storage for per-user presets.
// Get returns errors.ErrNotFound for a missing key.
type FilterStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MetricsProvider is polled by the metrics monitor.
type MetricsProvider interface {
	GetMetrics(ctx context.Context) (domain.MetricsSnapshot, error)
}

// ArtifactStore keeps rendered export files.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, key, contentType string, data []byte) error
	DeleteArtifact(ctx context.Context, key string) error
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

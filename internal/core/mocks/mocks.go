package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

var (
	_ ports.CommentBackend   = (*MockCommentBackend)(nil)
	_ ports.ExportBackend    = (*MockExportBackend)(nil)
	_ ports.AIBackend        = (*MockAIBackend)(nil)
	_ ports.TeamBackend      = (*MockTeamBackend)(nil)
	_ ports.FeatureFlags     = (*MockFeatureFlags)(nil)
	_ ports.FilterStore      = (*MockFilterStore)(nil)
	_ ports.MetricsProvider  = (*MockMetricsProvider)(nil)
	_ ports.ArtifactStore    = (*MockArtifactStore)(nil)
	_ ports.EventBroadcaster = (*MockEventBroadcaster)(nil)
	_ ports.EventSink        = (*MockEventSink)(nil)
	_ ports.ResourceService  = (*MockResourceService)(nil)
)

// MockCommentBackend is a mock implementation of ports.CommentBackend
type MockCommentBackend struct {
	mock.Mock
}

func NewMockCommentBackend() *MockCommentBackend {
	return &MockCommentBackend{}
}

func (m *MockCommentBackend) ListComments(ctx context.Context, resourceID string) ([]domain.Comment, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) GetComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) AddComment(ctx context.Context, comment domain.Comment) (*domain.Comment, error) {
	args := m.Called(ctx, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) UpdateComment(ctx context.Context, id uuid.UUID, patch domain.CommentPatch) (*domain.Comment, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) DeleteComment(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCommentBackend) ResolveComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) AssignComment(ctx context.Context, id uuid.UUID, assignee uuid.UUID) (*domain.Comment, error) {
	args := m.Called(ctx, id, assignee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) AddReaction(ctx context.Context, id uuid.UUID, reaction domain.Reaction) (*domain.Comment, error) {
	args := m.Called(ctx, id, reaction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentBackend) RemoveReaction(ctx context.Context, id uuid.UUID, userID uuid.UUID, reactionType domain.ReactionType) (*domain.Comment, error) {
	args := m.Called(ctx, id, userID, reactionType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

// MockExportBackend is a mock implementation of ports.ExportBackend
type MockExportBackend struct {
	mock.Mock
}

func NewMockExportBackend() *MockExportBackend {
	return &MockExportBackend{}
}

func (m *MockExportBackend) ExportComments(ctx context.Context, options domain.ExportOptions, requestedBy uuid.UUID) (string, error) {
	args := m.Called(ctx, options, requestedBy)
	return args.String(0), args.Error(1)
}

func (m *MockExportBackend) ScheduleExport(ctx context.Context, schedule domain.ExportSchedule) (*domain.ExportSchedule, error) {
	args := m.Called(ctx, schedule)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExportSchedule), args.Error(1)
}

func (m *MockExportBackend) GetExportHistory(ctx context.Context, resourceID string) ([]domain.ExportRecord, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExportRecord), args.Error(1)
}

// MockAIBackend is a mock implementation of ports.AIBackend
type MockAIBackend struct {
	mock.Mock
}

func NewMockAIBackend() *MockAIBackend {
	return &MockAIBackend{}
}

func (m *MockAIBackend) AnalyzeComment(ctx context.Context, comment domain.Comment) (*domain.CommentAnalysis, error) {
	args := m.Called(ctx, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CommentAnalysis), args.Error(1)
}

func (m *MockAIBackend) GenerateSuggestions(ctx context.Context, comment domain.Comment) ([]string, error) {
	args := m.Called(ctx, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAIBackend) GetAIInsights(ctx context.Context, resourceID string, comments []domain.Comment) (*domain.AIInsights, error) {
	args := m.Called(ctx, resourceID, comments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AIInsights), args.Error(1)
}

// MockTeamBackend is a mock implementation of ports.TeamBackend
type MockTeamBackend struct {
	mock.Mock
}

func NewMockTeamBackend() *MockTeamBackend {
	return &MockTeamBackend{}
}

func (m *MockTeamBackend) UpdateUserPresence(ctx context.Context, resourceID string, userID uuid.UUID, status domain.PresenceStatus) error {
	args := m.Called(ctx, resourceID, userID, status)
	return args.Error(0)
}

func (m *MockTeamBackend) ListParticipants(ctx context.Context, resourceID string) ([]domain.Participant, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Participant), args.Error(1)
}

func (m *MockTeamBackend) InviteUser(ctx context.Context, invitation domain.Invitation) error {
	args := m.Called(ctx, invitation)
	return args.Error(0)
}

func (m *MockTeamBackend) RemoveUser(ctx context.Context, resourceID string, userID uuid.UUID) error {
	args := m.Called(ctx, resourceID, userID)
	return args.Error(0)
}

// MockFeatureFlags is a mock implementation of ports.FeatureFlags
type MockFeatureFlags struct {
	mock.Mock
}

func NewMockFeatureFlags() *MockFeatureFlags {
	return &MockFeatureFlags{}
}

func (m *MockFeatureFlags) IsFeatureEnabled(ctx context.Context, name string) bool {
	args := m.Called(ctx, name)
	return args.Bool(0)
}

func (m *MockFeatureFlags) Features(ctx context.Context) map[string]bool {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]bool)
}

// MockFilterStore is a mock implementation of ports.FilterStore
type MockFilterStore struct {
	mock.Mock
}

func NewMockFilterStore() *MockFilterStore {
	return &MockFilterStore{}
}

func (m *MockFilterStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockFilterStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// MockMetricsProvider is a mock implementation of ports.MetricsProvider
type MockMetricsProvider struct {
	mock.Mock
}

func NewMockMetricsProvider() *MockMetricsProvider {
	return &MockMetricsProvider{}
}

func (m *MockMetricsProvider) GetMetrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.MetricsSnapshot), args.Error(1)
}

// MockArtifactStore is a mock implementation of ports.ArtifactStore
type MockArtifactStore struct {
	mock.Mock
}

func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{}
}

func (m *MockArtifactStore) PutArtifact(ctx context.Context, key, contentType string, data []byte) error {
	args := m.Called(ctx, key, contentType, data)
	return args.Error(0)
}

func (m *MockArtifactStore) DeleteArtifact(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(ctx context.Context, resourceID string, event domain.Event) error {
	args := m.Called(ctx, resourceID, event)
	return args.Error(0)
}

// MockEventSink is a mock implementation of ports.EventSink
type MockEventSink struct {
	mock.Mock
}

func NewMockEventSink() *MockEventSink {
	return &MockEventSink{}
}

func (m *MockEventSink) Emit(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockResourceService is a mock implementation of ports.ResourceService
type MockResourceService struct {
	mock.Mock
}

func NewMockResourceService() *MockResourceService {
	return &MockResourceService{}
}

func (m *MockResourceService) ListComments(ctx context.Context, resourceID string, filter domain.FilterConfig) ([]domain.Comment, error) {
	args := m.Called(ctx, resourceID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Comment), args.Error(1)
}

func (m *MockResourceService) ExportHistory(ctx context.Context, resourceID string) ([]domain.ExportRecord, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExportRecord), args.Error(1)
}

func (m *MockResourceService) ScheduleExport(ctx context.Context, params ports.ScheduleExportParams) (*domain.ExportSchedule, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExportSchedule), args.Error(1)
}

func (m *MockResourceService) ListParticipants(ctx context.Context, resourceID string) ([]domain.Participant, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Participant), args.Error(1)
}

func (m *MockResourceService) InviteUser(ctx context.Context, params ports.InviteUserParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockResourceService) RemoveUser(ctx context.Context, params ports.RemoveUserParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockResourceService) Features(ctx context.Context) map[string]bool {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]bool)
}

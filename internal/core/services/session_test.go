package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/mocks"
	"github.com/lorrc/ups-collab/internal/core/services"
)

// loopback delivers broadcast events to every registered session, the way
// the websocket hub does for sessions of one process.
type loopback struct {
	mu       sync.Mutex
	sessions []*services.Session
	sent     []domain.EventType
}

func (l *loopback) add(s *services.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, s)
}

func (l *loopback) Broadcast(ctx context.Context, resourceID string, event domain.Event) error {
	l.mu.Lock()
	l.sent = append(l.sent, event.Type)
	targets := append([]*services.Session(nil), l.sessions...)
	l.mu.Unlock()

	for _, s := range targets {
		if s.ResourceID == resourceID {
			s.Ingest(ctx, event)
		}
	}
	return nil
}

func (l *loopback) Sent() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.EventType(nil), l.sent...)
}

type workspaceFixture struct {
	ws       *services.Workspace
	comments *mocks.MockCommentBackend
	team     *mocks.MockTeamBackend
	sink     *mocks.MockEventSink
	hub      *loopback
}

func newWorkspaceFixture(t *testing.T) *workspaceFixture {
	t.Helper()

	f := &workspaceFixture{
		comments: mocks.NewMockCommentBackend(),
		team:     mocks.NewMockTeamBackend(),
		sink:     mocks.NewMockEventSink(),
		hub:      &loopback{},
	}
	f.team.On("UpdateUserPresence", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.sink.On("Emit", mock.Anything, mock.Anything).Return(nil).Maybe()

	store := mocks.NewMockFilterStore()
	store.On("Get", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound).Maybe()

	f.ws = services.NewWorkspace(services.WorkspaceParams{
		Comments:    f.comments,
		Exports:     mocks.NewMockExportBackend(),
		AI:          mocks.NewMockAIBackend(),
		Team:        f.team,
		Flags:       flagsWith(domain.FeatureCollaboration),
		FilterStore: store,
		Broadcaster: f.hub,
		Sink:        f.sink,
		Timings:     services.Timings{RetryBaseDelay: time.Millisecond},
		Logger:      testLogger(),
	})
	return f
}

func (f *workspaceFixture) open(t *testing.T, name string) *services.Session {
	t.Helper()

	s, err := f.ws.OpenSession(context.Background(), domain.Participant{UserID: uuid.New(), Name: name}, testResource)
	require.NoError(t, err)
	f.hub.add(s)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestSession_SharedState(t *testing.T) {
	ctx := context.Background()
	f := newWorkspaceFixture(t)
	f.comments.On("ListComments", mock.Anything, testResource).Return([]domain.Comment{}, nil)

	ana := f.open(t, "Ana")
	bo := f.open(t, "Bo")

	t.Run("comments created in one session appear in the other", func(t *testing.T) {
		saved := &domain.Comment{}
		f.comments.On("AddComment", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				*saved = args.Get(1).(domain.Comment)
				saved.Version = 1
			}).
			Return(saved, nil).Once()

		created, err := ana.Comments.CreateComment(ctx, services.CreateCommentParams{Content: "Header overlaps"})
		require.NoError(t, err)

		got, ok := bo.Comments.Comment(created.ID)
		require.True(t, ok)
		assert.Equal(t, "Header overlaps", got.Content)
		assert.False(t, bo.Comments.IsUpdating(created.ID))
	})

	t.Run("typing travels between sessions", func(t *testing.T) {
		require.NoError(t, bo.Presence.SetTyping(ctx, true, nil))

		assert.Equal(t, []string{"Bo"}, ana.Presence.TypingUsers())
		assert.Empty(t, bo.Presence.TypingUsers())
	})

	t.Run("session-local events are not broadcast", func(t *testing.T) {
		_, err := ana.Notifications.AddNotification(ctx, services.AddNotificationParams{Title: "local"})
		require.NoError(t, err)

		assert.Empty(t, bo.Notifications.Notifications())
		for _, sent := range f.hub.Sent() {
			assert.True(t, sent.Shared(), "broadcast %s", sent)
		}
	})

	t.Run("closed sessions ignore remote events", func(t *testing.T) {
		bo.Close(ctx)
		assert.True(t, bo.Closed())

		require.NoError(t, ana.Presence.UpdateCursor(ctx, 1, 2))
		assert.Empty(t, bo.Presence.Cursors())

		f.team.AssertCalled(t, "UpdateUserPresence", mock.Anything, testResource, bo.User.UserID, domain.PresenceOffline)
	})
}

func TestWorkspace_OpenSession(t *testing.T) {
	ctx := context.Background()

	t.Run("resource id is required", func(t *testing.T) {
		f := newWorkspaceFixture(t)

		_, err := f.ws.OpenSession(ctx, domain.Participant{UserID: uuid.New()}, "")

		assert.ErrorIs(t, err, apperrors.ErrResourceIDRequired)
	})

	t.Run("initial load is retried", func(t *testing.T) {
		f := newWorkspaceFixture(t)
		existing := existingComment("from before", 4)
		f.comments.On("ListComments", mock.Anything, testResource).Return(nil, errors.New("cold start")).Twice()
		f.comments.On("ListComments", mock.Anything, testResource).Return([]domain.Comment{existing}, nil).Once()

		s := f.open(t, "Ana")

		_, ok := s.Comments.Comment(existing.ID)
		assert.True(t, ok)
		f.comments.AssertNumberOfCalls(t, "ListComments", 3)
	})

	t.Run("failed load closes the session", func(t *testing.T) {
		f := newWorkspaceFixture(t)
		user := domain.Participant{UserID: uuid.New(), Name: "Ana"}
		f.comments.On("ListComments", mock.Anything, testResource).Return(nil, errors.New("down"))

		s, err := f.ws.OpenSession(ctx, user, testResource)

		require.Error(t, err)
		assert.Nil(t, s)
		f.comments.AssertNumberOfCalls(t, "ListComments", 3)
		f.team.AssertCalled(t, "UpdateUserPresence", mock.Anything, testResource, user.UserID, domain.PresenceOffline)
	})
}

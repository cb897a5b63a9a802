package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/eventbus"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// loadAttempts bounds the retries of the initial comment load.
const loadAttempts = 3

// Timings holds the delays used by a session's components. Zero values
// select each component's default.
type Timings struct {
	TypingTimeout    time.Duration
	AutoReadDelay    time.Duration
	ExportTick       time.Duration
	ExportResetDelay time.Duration
	MetricsInterval  time.Duration
	RetryBaseDelay   time.Duration
}

// WorkspaceParams holds the collaborators shared by every session.
type WorkspaceParams struct {
	Comments    ports.CommentBackend
	Exports     ports.ExportBackend
	AI          ports.AIBackend
	Team        ports.TeamBackend
	Flags       ports.FeatureFlags
	FilterStore ports.FilterStore
	Broadcaster ports.EventBroadcaster
	Sink        ports.EventSink
	Clock       clock.Clock
	Timings     Timings
	// Participants counts the live connections on a resource; optional.
	Participants func(resourceID string) int
	Logger       *slog.Logger
}

// Workspace opens sessions against a shared set of backends.
type Workspace struct {
	params WorkspaceParams
}

// NewWorkspace creates a Workspace.
func NewWorkspace(params WorkspaceParams) *Workspace {
	if params.Clock == nil {
		params.Clock = clock.WallClock
	}
	return &Workspace{params: params}
}

// OpenSession builds a session for user on resourceID, announces the user
// and loads the resource's comments.
func (w *Workspace) OpenSession(ctx context.Context, user domain.Participant, resourceID string) (*Session, error) {
	if resourceID == "" {
		return nil, apperrors.ErrResourceIDRequired
	}

	s := newSession(ctx, w.params, user, resourceID)
	if err := s.open(ctx); err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Session holds the client-state components of one user on one resource.
// Components talk to each other only through the session's private bus.
type Session struct {
	ID         string
	User       domain.Participant
	ResourceID string

	Bus           *eventbus.Bus
	Publisher     *eventbus.Router
	Mutator       *Mutator
	Retrier       *Retrier
	Comments      *CommentService
	Presence      *PresenceService
	Notifications *NotificationService
	Exports       *ExportService
	Filters       *FilterService
	Monitor       *MonitoringService
	Metrics       *SessionMetrics

	logger    *slog.Logger
	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(ctx context.Context, p WorkspaceParams, user domain.Participant, resourceID string) *Session {
	id := uuid.NewString()
	logger := p.Logger.With("session_id", id, "resource_id", resourceID, "user_id", user.UserID.String())

	bus := eventbus.New(logger)
	router := eventbus.NewRouter(eventbus.RouterParams{
		Bus:         bus,
		Origin:      id,
		ResourceID:  resourceID,
		Broadcaster: p.Broadcaster,
		Sink:        p.Sink,
		Logger:      logger,
	})
	mutator := NewMutator(router, logger)

	s := &Session{
		ID:         id,
		User:       user,
		ResourceID: resourceID,
		Bus:        bus,
		Publisher:  router,
		Mutator:    mutator,
		Retrier:    NewRetrier(p.Clock, p.Timings.RetryBaseDelay, logger),
		logger:     logger.With("component", "session"),
	}

	s.Comments = NewCommentService(CommentServiceParams{
		Backend:    p.Comments,
		AI:         p.AI,
		Flags:      p.Flags,
		Mutator:    mutator,
		Publisher:  router,
		Subscriber: bus,
		Origin:     id,
		ResourceID: resourceID,
		Author:     domain.Author{ID: user.UserID, Name: user.Name},
		Logger:     logger,
	})
	s.Presence = NewPresenceService(PresenceServiceParams{
		Team:          p.Team,
		Flags:         p.Flags,
		Publisher:     router,
		Subscriber:    bus,
		Clock:         p.Clock,
		User:          user,
		ResourceID:    resourceID,
		TypingTimeout: p.Timings.TypingTimeout,
		Logger:        logger,
	})
	s.Notifications = NewNotificationService(NotificationServiceParams{
		Publisher:     router,
		Subscriber:    bus,
		Clock:         p.Clock,
		AutoReadDelay: p.Timings.AutoReadDelay,
		UserID:        user.UserID,
		Logger:        logger,
	})
	s.Exports = NewExportService(ExportServiceParams{
		Backend:    p.Exports,
		Flags:      p.Flags,
		Publisher:  router,
		Clock:      p.Clock,
		UserID:     user.UserID,
		ResourceID: resourceID,
		Tick:       p.Timings.ExportTick,
		ResetDelay: p.Timings.ExportResetDelay,
		Logger:     logger,
	})
	s.Filters = NewFilterService(ctx, FilterServiceParams{
		Store:  p.FilterStore,
		UserID: user.UserID,
		Clock:  p.Clock,
		Logger: logger,
	})

	s.Metrics = &SessionMetrics{
		Comments:      s.Comments,
		Mutator:       mutator,
		Presence:      s.Presence,
		Notifications: s.Notifications,
		Exports:       s.Exports,
		Bus:           bus,
		Clock:         p.Clock,
	}
	if p.Participants != nil {
		s.Metrics.Participants = func() int { return p.Participants(resourceID) }
	}
	s.Monitor = NewMonitoringService(MonitoringServiceParams{
		Provider:  s.Metrics,
		Publisher: router,
		Clock:     p.Clock,
		Interval:  p.Timings.MetricsInterval,
		Logger:    logger,
	})

	return s
}

func (s *Session) open(ctx context.Context) error {
	if err := s.Presence.Join(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to announce presence", "error", err)
	}

	_, err := Retry(ctx, s.Retrier, loadAttempts, s.Comments.LoadComments)
	return err
}

// Subscribe forwards every event on the session bus to handler, typically
// a transport writing them to the client.
func (s *Session) Subscribe(handler ports.EventHandler) func() {
	return s.Bus.SubscribeAll(handler)
}

// Ingest delivers a shared event produced by another session. Events from
// this session, for another resource or of a session-local kind are ignored.
func (s *Session) Ingest(ctx context.Context, event domain.Event) {
	if s.closed.Load() || !event.Type.Shared() {
		return
	}
	if event.Meta(domain.MetaOrigin) == s.ID {
		return
	}
	if resource := event.Meta(domain.MetaResource); resource != "" && resource != s.ResourceID {
		return
	}
	s.Bus.Publish(ctx, event)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close stops every timer and poller, reports the user offline and drops
// all subscribers. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.Monitor.Stop()
		s.Exports.Close()
		s.Notifications.Close()
		s.Presence.Close()
		s.Comments.Close()

		if err := s.Presence.Leave(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to report presence offline", "error", err)
		}
		s.Bus.Close()
	})
}

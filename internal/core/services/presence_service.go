package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
	"github.com/lorrc/ups-collab/internal/infrastructure/timers"
)

// DefaultTypingTimeout is how long a typing indicator lives without a refresh.
const DefaultTypingTimeout = 3 * time.Second

// PresenceServiceParams wires a PresenceService.
type PresenceServiceParams struct {
	Team          ports.TeamBackend
	Flags         ports.FeatureFlags
	Publisher     ports.EventPublisher
	Subscriber    ports.EventSubscriber
	Clock         clock.Clock
	User          domain.Participant
	ResourceID    string
	TypingTimeout time.Duration
	Logger        *slog.Logger
}

// PresenceService tracks the cursors and typing state of the other users on
// a resource and publishes the local user's own.
type PresenceService struct {
	team          ports.TeamBackend
	flags         ports.FeatureFlags
	publisher     ports.EventPublisher
	clock         clock.Clock
	timers        *timers.Registry
	user          domain.Participant
	resourceID    string
	typingTimeout time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	cursors map[uuid.UUID]domain.PresenceCursor
	typing  map[uuid.UUID]string

	unsubscribe []func()
}

// NewPresenceService creates a PresenceService listening for collaboration events.
func NewPresenceService(params PresenceServiceParams) *PresenceService {
	clk := params.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	timeout := params.TypingTimeout
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}

	s := &PresenceService{
		team:          params.Team,
		flags:         params.Flags,
		publisher:     params.Publisher,
		clock:         clk,
		timers:        timers.NewRegistry(clk),
		user:          params.User,
		resourceID:    params.ResourceID,
		typingTimeout: timeout,
		logger:        params.Logger.With("component", "presence_service", "resource_id", params.ResourceID),
		cursors:       make(map[uuid.UUID]domain.PresenceCursor),
		typing:        make(map[uuid.UUID]string),
	}

	if params.Subscriber != nil {
		s.unsubscribe = append(s.unsubscribe,
			params.Subscriber.Subscribe(domain.EventCollaborationCursor, s.handleCursor),
			params.Subscriber.Subscribe(domain.EventCollaborationTyping, s.handleTyping),
		)
	}

	return s
}

// Join reports the local user online.
func (s *PresenceService) Join(ctx context.Context) error {
	if err := s.team.UpdateUserPresence(ctx, s.resourceID, s.user.UserID, domain.PresenceOnline); err != nil {
		return fmt.Errorf("join resource: %w", err)
	}
	return nil
}

// Leave reports the local user offline.
func (s *PresenceService) Leave(ctx context.Context) error {
	if err := s.team.UpdateUserPresence(ctx, s.resourceID, s.user.UserID, domain.PresenceOffline); err != nil {
		return fmt.Errorf("leave resource: %w", err)
	}
	return nil
}

// UpdateCursor publishes the local user's pointer position. Callers throttle.
func (s *PresenceService) UpdateCursor(ctx context.Context, x, y float64) error {
	if err := requireFeature(ctx, s.flags, domain.FeatureCollaboration); err != nil {
		return err
	}
	if !isFinite(x) || !isFinite(y) {
		return apperrors.ErrInvalidCoordinates
	}

	s.publisher.Publish(ctx, domain.NewEvent(domain.CursorMoved{
		UserID:   s.user.UserID,
		UserName: s.user.Name,
		X:        x,
		Y:        y,
	}))
	return nil
}

// SetTyping publishes whether the local user is typing, optionally on a comment.
func (s *PresenceService) SetTyping(ctx context.Context, isTyping bool, commentID *uuid.UUID) error {
	if err := requireFeature(ctx, s.flags, domain.FeatureCollaboration); err != nil {
		return err
	}

	s.publisher.Publish(ctx, domain.NewEvent(domain.TypingChanged{
		UserID:    s.user.UserID,
		UserName:  s.user.Name,
		IsTyping:  isTyping,
		CommentID: commentID,
	}))
	return nil
}

func (s *PresenceService) handleCursor(_ context.Context, event domain.Event) error {
	p, ok := event.Payload.(domain.CursorMoved)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if p.UserID == s.user.UserID {
		return nil
	}

	s.mu.Lock()
	s.cursors[p.UserID] = domain.PresenceCursor{
		UserID:    p.UserID,
		UserName:  p.UserName,
		X:         p.X,
		Y:         p.Y,
		UpdatedAt: s.clock.Now(),
	}
	s.mu.Unlock()
	return nil
}

func (s *PresenceService) handleTyping(_ context.Context, event domain.Event) error {
	p, ok := event.Payload.(domain.TypingChanged)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if p.UserID == s.user.UserID {
		return nil
	}

	key := typingKey(p.UserID)
	if !p.IsTyping {
		s.timers.Cancel(key)
		s.removeTyping(p.UserID)
		return nil
	}

	userID := p.UserID
	s.mu.Lock()
	s.timers.Schedule(key, s.typingTimeout, func() { s.removeTyping(userID) })
	s.typing[userID] = p.UserName
	s.mu.Unlock()
	return nil
}

func (s *PresenceService) removeTyping(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.typing, userID)
	s.mu.Unlock()
}

func typingKey(userID uuid.UUID) string {
	return "typing:" + userID.String()
}

// Cursors returns the last known cursor of every remote user.
func (s *PresenceService) Cursors() map[uuid.UUID]domain.PresenceCursor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]domain.PresenceCursor, len(s.cursors))
	for id, c := range s.cursors {
		out[id] = c
	}
	return out
}

// TypingUsers returns the names of remote users currently typing, sorted.
func (s *PresenceService) TypingUsers() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.typing))
	for _, name := range s.typing {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Close stops listening and cancels pending typing timers.
func (s *PresenceService) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.timers.CancelAll()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

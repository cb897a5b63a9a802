package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
	"github.com/lorrc/ups-collab/internal/infrastructure/timers"
)

// DefaultAutoReadDelay is how long a low priority notification stays unread.
const DefaultAutoReadDelay = 10 * time.Second

// NotificationServiceParams wires a NotificationService.
type NotificationServiceParams struct {
	Publisher     ports.EventPublisher
	Subscriber    ports.EventSubscriber
	Clock         clock.Clock
	AutoReadDelay time.Duration
	// UserID receives mention notifications. Nil disables them.
	UserID        uuid.UUID
	Logger        *slog.Logger
}

// AddNotificationParams defines the input for queueing a notification.
type AddNotificationParams struct {
	Title    string
	Message  string
	Priority domain.Priority
	Source   domain.EventType
}

// NotificationService is a session's ordered notification queue.
type NotificationService struct {
	publisher     ports.EventPublisher
	clock         clock.Clock
	timers        *timers.Registry
	autoReadDelay time.Duration
	userID        uuid.UUID
	logger        *slog.Logger

	mu             sync.RWMutex
	items          []domain.Notification
	priorityFilter map[domain.Priority]bool
	enabled        bool

	unsubscribe []func()
}

// NewNotificationService creates a queue that also turns failures and
// completed background work on the bus into notifications.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	clk := params.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	delay := params.AutoReadDelay
	if delay <= 0 {
		delay = DefaultAutoReadDelay
	}

	s := &NotificationService{
		publisher:      params.Publisher,
		clock:          clk,
		timers:         timers.NewRegistry(clk),
		autoReadDelay:  delay,
		userID:         params.UserID,
		logger:         params.Logger.With("component", "notification_service"),
		priorityFilter: allPriorities(),
		enabled:        true,
	}

	if params.Subscriber != nil {
		s.unsubscribe = append(s.unsubscribe,
			params.Subscriber.Subscribe(domain.EventSystemError, s.handleToast),
			params.Subscriber.Subscribe(domain.EventExportFailed, s.handleToast),
			params.Subscriber.Subscribe(domain.EventExportComplete, s.handleToast),
			params.Subscriber.Subscribe(domain.EventAIAnalysisComplete, s.handleToast),
		)
		if params.UserID != uuid.Nil {
			s.unsubscribe = append(s.unsubscribe,
				params.Subscriber.Subscribe(domain.EventCommentCreated, s.handleMention),
				params.Subscriber.Subscribe(domain.EventCommentReplied, s.handleMention),
			)
		}
	}

	return s
}

func allPriorities() map[domain.Priority]bool {
	set := make(map[domain.Priority]bool, 4)
	for _, p := range domain.AllPriorities() {
		set[p] = true
	}
	return set
}

// AddNotification appends a notification. Low priority ones mark themselves
// read after the auto-read delay unless removed first.
func (s *NotificationService) AddNotification(ctx context.Context, params AddNotificationParams) (domain.Notification, error) {
	priority := params.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.IsValid() {
		return domain.Notification{}, apperrors.ErrInvalidPriority
	}

	n := domain.Notification{
		ID:        uuid.New(),
		Title:     params.Title,
		Message:   params.Message,
		Priority:  priority,
		CreatedAt: s.clock.Now().UTC(),
		Source:    params.Source,
	}

	s.mu.Lock()
	s.items = append(s.items, n)
	if priority == domain.PriorityLow {
		id := n.ID
		s.timers.Schedule(id.String(), s.autoReadDelay, func() { s.markRead(id) })
	}
	s.mu.Unlock()

	s.publisher.Publish(ctx, domain.NewEvent(domain.NotificationCreated{Notification: n}))
	return n, nil
}

// MarkAsRead marks one notification read.
func (s *NotificationService) MarkAsRead(id uuid.UUID) error {
	s.timers.Cancel(id.String())
	if !s.markRead(id) {
		return apperrors.NewNotFoundError(apperrors.ErrNotFound, "notification not found")
	}
	return nil
}

func (s *NotificationService) markRead(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			next := make([]domain.Notification, len(s.items))
			copy(next, s.items)
			next[i].Read = true
			s.items = next
			return true
		}
	}
	return false
}

// MarkAllAsRead marks every notification read.
func (s *NotificationService) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.CancelAll()
	next := make([]domain.Notification, len(s.items))
	for i, n := range s.items {
		n.Read = true
		next[i] = n
	}
	s.items = next
}

// Dismiss removes one notification.
func (s *NotificationService) Dismiss(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.Cancel(id.String())
	next := make([]domain.Notification, 0, len(s.items))
	for _, n := range s.items {
		if n.ID != id {
			next = append(next, n)
		}
	}
	if len(next) == len(s.items) {
		return apperrors.NewNotFoundError(apperrors.ErrNotFound, "notification not found")
	}
	s.items = next
	return nil
}

// ClearAll empties the queue and cancels pending auto-read timers.
func (s *NotificationService) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.CancelAll()
	s.items = nil
}

// SetPriorityFilter limits the visible notifications to priorities. An
// empty list shows every priority.
func (s *NotificationService) SetPriorityFilter(priorities []domain.Priority) error {
	filter := allPriorities()
	if len(priorities) > 0 {
		filter = make(map[domain.Priority]bool, len(priorities))
		for _, p := range priorities {
			if !p.IsValid() {
				return apperrors.ErrInvalidPriority
			}
			filter[p] = true
		}
	}

	s.mu.Lock()
	s.priorityFilter = filter
	s.mu.Unlock()
	return nil
}

// SetEnabled turns the visible view on or off. Notifications keep queueing.
func (s *NotificationService) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Notifications returns the whole queue, oldest first.
func (s *NotificationService) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Visible returns the notifications passing the enabled flag and priority filter.
func (s *NotificationService) Visible() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled {
		return []domain.Notification{}
	}
	out := make([]domain.Notification, 0, len(s.items))
	for _, n := range s.items {
		if s.priorityFilter[n.Priority] {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount counts visible unread notifications.
func (s *NotificationService) UnreadCount() int {
	count := 0
	for _, n := range s.Visible() {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *NotificationService) handleToast(ctx context.Context, event domain.Event) error {
	params, ok := toastFor(event.Payload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	params.Source = event.Type
	_, err := s.AddNotification(ctx, params)
	return err
}

func toastFor(payload domain.EventPayload) (AddNotificationParams, bool) {
	switch p := payload.(type) {
	case domain.SystemError:
		return AddNotificationParams{
			Title:    "Operation failed",
			Message:  fmt.Sprintf("%s failed: %s", p.Operation, p.Message),
			Priority: domain.PriorityHigh,
		}, true
	case domain.ExportFailed:
		return AddNotificationParams{
			Title:    "Export failed",
			Message:  p.Message,
			Priority: domain.PriorityHigh,
		}, true
	case domain.ExportCompleted:
		return AddNotificationParams{
			Title:    "Export ready",
			Message:  fmt.Sprintf("Export %s is ready", p.ExportID),
			Priority: domain.PriorityMedium,
		}, true
	case domain.AnalysisCompleted:
		return AddNotificationParams{
			Title:    "Analysis complete",
			Message:  p.Analysis.Summary,
			Priority: domain.PriorityLow,
		}, true
	}
	return AddNotificationParams{}, false
}

// handleMention notifies the session user when someone else mentions them.
func (s *NotificationService) handleMention(ctx context.Context, event domain.Event) error {
	comment, ok := domain.CommentFromPayload(event.Payload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if comment.Author.ID == s.userID || !comment.MentionsUser(s.userID) {
		return nil
	}
	_, err := s.AddNotification(ctx, AddNotificationParams{
		Title:    "You were mentioned",
		Message:  fmt.Sprintf("%s: %s", comment.Author.Name, excerpt(comment.Content, mentionExcerptLength)),
		Priority: domain.PriorityMedium,
		Source:   event.Type,
	})
	return err
}

const mentionExcerptLength = 80

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// PendingTimers returns the number of scheduled auto-read timers.
func (s *NotificationService) PendingTimers() int {
	return s.timers.Len()
}

// Close stops listening and cancels pending timers.
func (s *NotificationService) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.timers.CancelAll()
}

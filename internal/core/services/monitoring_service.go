package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/eventbus"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// DefaultMetricsInterval is the polling period of the metrics monitor.
const DefaultMetricsInterval = 5 * time.Second

// MonitoringServiceParams wires a MonitoringService.
type MonitoringServiceParams struct {
	Provider  ports.MetricsProvider
	Publisher ports.EventPublisher
	Clock     clock.Clock
	Interval  time.Duration
	Logger    *slog.Logger
}

// MonitoringService polls a metrics provider while monitoring is started.
type MonitoringService struct {
	provider  ports.MetricsProvider
	publisher ports.EventPublisher
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	latest *domain.MetricsSnapshot
}

// NewMonitoringService creates a stopped monitor.
func NewMonitoringService(params MonitoringServiceParams) *MonitoringService {
	clk := params.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}
	return &MonitoringService{
		provider:  params.Provider,
		publisher: params.Publisher,
		clock:     clk,
		interval:  interval,
		logger:    params.Logger.With("component", "monitoring_service"),
	}
}

// Start polls once right away and then every interval until Stop or until
// ctx is done. Starting a running monitor does nothing.
func (s *MonitoringService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(context.WithoutCancel(ctx), ctx.Done(), s.stop, s.done)
}

func (s *MonitoringService) run(ctx context.Context, cancelled <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.poll(ctx)

	timer := s.clock.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-cancelled:
			return
		case <-timer.Chan():
			s.poll(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *MonitoringService) poll(ctx context.Context) {
	snapshot, err := s.provider.GetMetrics(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to collect metrics", "error", err)
		return
	}

	s.mu.Lock()
	s.latest = &snapshot
	s.mu.Unlock()

	s.publisher.Publish(ctx, domain.NewEvent(domain.MetricsUpdated{Snapshot: snapshot}))
}

// Stop ends polling and waits for the poller to exit.
func (s *MonitoringService) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether monitoring is started.
func (s *MonitoringService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Latest returns the most recent snapshot, if any poll has succeeded.
func (s *MonitoringService) Latest() (domain.MetricsSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return domain.MetricsSnapshot{}, false
	}
	return *s.latest, true
}

// SessionMetrics reports a session's own state as metrics.
type SessionMetrics struct {
	Comments      *CommentService
	Mutator       *Mutator
	Presence      *PresenceService
	Notifications *NotificationService
	Exports       *ExportService
	Bus           interface{ Stats() eventbus.Stats }
	// Participants counts the connections on the resource; optional.
	Participants func() int
	Clock        clock.Clock
}

var _ ports.MetricsProvider = (*SessionMetrics)(nil)

// GetMetrics implements ports.MetricsProvider.
func (m *SessionMetrics) GetMetrics(context.Context) (domain.MetricsSnapshot, error) {
	clk := m.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	stats := m.Bus.Stats()
	snapshot := domain.MetricsSnapshot{
		CollectedAt:      clk.Now().UTC(),
		Comments:         m.Comments.store.Len(),
		PendingMutations: m.Mutator.Pending(),
		ActiveCursors:    len(m.Presence.Cursors()),
		TypingUsers:      len(m.Presence.TypingUsers()),
		UnreadNotices:    m.Notifications.UnreadCount(),
		EventsPublished:  stats.Published,
		HandlerFailures:  stats.HandlerFailures,
		ExportProgress:   m.Exports.Job().Progress,
	}
	if m.Participants != nil {
		snapshot.RoomParticipants = m.Participants()
	}
	return snapshot, nil
}

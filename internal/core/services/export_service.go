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

const (
	// DefaultExportTick is the interval of the progress simulator.
	DefaultExportTick = 200 * time.Millisecond
	// DefaultExportResetDelay is how long a finished export stays at 100%.
	DefaultExportResetDelay = time.Second

	exportProgressStep    = 10
	exportProgressCeiling = 90

	exportResetKey = "export:reset"
)

// ExportServiceParams wires an ExportService.
type ExportServiceParams struct {
	Backend    ports.ExportBackend
	Flags      ports.FeatureFlags
	Publisher  ports.EventPublisher
	Clock      clock.Clock
	UserID     uuid.UUID
	ResourceID string
	Tick       time.Duration
	ResetDelay time.Duration
	Logger     *slog.Logger
}

// ExportService tracks the single export a session may run at a time.
// Progress is simulated locally and only reaches 100 once the backend
// has answered.
type ExportService struct {
	backend    ports.ExportBackend
	flags      ports.FeatureFlags
	publisher  ports.EventPublisher
	clock      clock.Clock
	timers     *timers.Registry
	userID     uuid.UUID
	resourceID string
	tick       time.Duration
	resetDelay time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	job     domain.ExportJob
	simStop chan struct{}
	simDone chan struct{}
}

// NewExportService creates an idle ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	clk := params.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	tick := params.Tick
	if tick <= 0 {
		tick = DefaultExportTick
	}
	resetDelay := params.ResetDelay
	if resetDelay <= 0 {
		resetDelay = DefaultExportResetDelay
	}

	return &ExportService{
		backend:    params.Backend,
		flags:      params.Flags,
		publisher:  params.Publisher,
		clock:      clk,
		timers:     timers.NewRegistry(clk),
		userID:     params.UserID,
		resourceID: params.ResourceID,
		tick:       tick,
		resetDelay: resetDelay,
		logger:     params.Logger.With("component", "export_service", "resource_id", params.ResourceID),
		job:        domain.ExportJob{Status: domain.ExportStatusIdle},
	}
}

func (s *ExportService) normalize(options domain.ExportOptions) (domain.ExportOptions, error) {
	if options.ResourceID == "" {
		options.ResourceID = s.resourceID
	}
	if options.Format == "" {
		options.Format = domain.ExportCSV
	}
	if !options.Format.IsValid() {
		return options, apperrors.ErrInvalidExportFormat
	}
	return options, nil
}

// ExportComments runs an export and returns the backend's export id.
func (s *ExportService) ExportComments(ctx context.Context, options domain.ExportOptions) (string, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureExport); err != nil {
		return "", err
	}
	options, err := s.normalize(options)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.job.Status == domain.ExportStatusRunning {
		s.mu.Unlock()
		return "", apperrors.ErrExportInProgress
	}
	s.timers.Cancel(exportResetKey)
	s.job = domain.ExportJob{Options: options, Status: domain.ExportStatusRunning}
	s.simStop = make(chan struct{})
	s.simDone = make(chan struct{})
	go s.simulate(context.WithoutCancel(ctx), s.simStop, s.simDone)
	s.mu.Unlock()

	s.publisher.Publish(ctx, domain.NewEvent(domain.ExportStarted{Options: options}))

	exportID, err := s.backend.ExportComments(ctx, options, s.userID)
	s.stopSimulator()

	if err != nil {
		s.mu.Lock()
		s.job = domain.ExportJob{
			Options:   options,
			Status:    domain.ExportStatusIdle,
			LastError: err.Error(),
		}
		s.mu.Unlock()

		s.logger.WarnContext(ctx, "export failed", "error", err)
		s.publisher.Publish(ctx, domain.NewEvent(domain.ExportFailed{Options: options, Message: err.Error()}))
		return "", err
	}

	s.mu.Lock()
	s.job = domain.ExportJob{
		Options:  options,
		Progress: 100,
		Status:   domain.ExportStatusDone,
		ExportID: exportID,
	}
	s.timers.Schedule(exportResetKey, s.resetDelay, s.reset)
	s.mu.Unlock()

	s.publisher.Publish(ctx, domain.NewEvent(domain.ExportCompleted{ExportID: exportID, Options: options}))
	return exportID, nil
}

func (s *ExportService) simulate(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := s.clock.NewTimer(s.tick)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.Chan():
		}

		s.mu.Lock()
		if s.job.Status != domain.ExportStatusRunning || s.job.Progress >= exportProgressCeiling {
			s.mu.Unlock()
			return
		}
		s.job.Progress = min(s.job.Progress+exportProgressStep, exportProgressCeiling)
		progress := s.job.Progress
		s.mu.Unlock()

		s.publisher.Publish(ctx, domain.NewEvent(domain.ExportProgressed{Progress: progress}))

		if progress >= exportProgressCeiling {
			return
		}
		timer.Reset(s.tick)
	}
}

// stopSimulator stops the progress simulator and waits for it to exit.
func (s *ExportService) stopSimulator() {
	s.mu.Lock()
	stop, done := s.simStop, s.simDone
	s.simStop, s.simDone = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *ExportService) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job.Status == domain.ExportStatusDone {
		s.job = domain.ExportJob{Status: domain.ExportStatusIdle}
	}
}

// ScheduleExport asks the backend to run an export later.
func (s *ExportService) ScheduleExport(ctx context.Context, options domain.ExportOptions, runAt time.Time) (*domain.ExportSchedule, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureExport); err != nil {
		return nil, err
	}
	options, err := s.normalize(options)
	if err != nil {
		return nil, err
	}
	if !runAt.After(s.clock.Now()) {
		return nil, apperrors.ErrScheduleInPast
	}

	schedule, err := s.backend.ScheduleExport(ctx, domain.ExportSchedule{
		ID:          uuid.NewString(),
		Options:     options,
		RunAt:       runAt.UTC(),
		RequestedBy: s.userID,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule export: %w", err)
	}
	return schedule, nil
}

// ExportHistory lists the resource's completed exports.
func (s *ExportService) ExportHistory(ctx context.Context) ([]domain.ExportRecord, error) {
	if err := requireFeature(ctx, s.flags, domain.FeatureExport); err != nil {
		return nil, err
	}
	records, err := s.backend.GetExportHistory(ctx, s.resourceID)
	if err != nil {
		return nil, fmt.Errorf("export history: %w", err)
	}
	return records, nil
}

// Job returns a snapshot of the export job.
func (s *ExportService) Job() domain.ExportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// Close stops the simulator and any pending reset.
func (s *ExportService) Close() {
	s.stopSimulator()
	s.timers.CancelAll()
}

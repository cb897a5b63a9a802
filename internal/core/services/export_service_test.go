package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/eventbus"
	"github.com/lorrc/ups-collab/internal/core/mocks"
	"github.com/lorrc/ups-collab/internal/core/services"
)

type exportFixture struct {
	svc     *services.ExportService
	rec     *recorder
	backend *mocks.MockExportBackend
	clock   *testclock.Clock
	userID  uuid.UUID
}

func newExportFixture(t *testing.T, flags *mocks.MockFeatureFlags) *exportFixture {
	t.Helper()

	bus := eventbus.New(testLogger())
	f := &exportFixture{
		rec:     newRecorder(bus),
		backend: mocks.NewMockExportBackend(),
		clock:   testclock.NewClock(time.Now()),
		userID:  uuid.New(),
	}
	f.svc = services.NewExportService(services.ExportServiceParams{
		Backend:    f.backend,
		Flags:      flags,
		Publisher:  bus,
		Clock:      f.clock,
		UserID:     f.userID,
		ResourceID: testResource,
		Logger:     testLogger(),
	})
	t.Cleanup(f.svc.Close)
	return f
}

type exportResult struct {
	id  string
	err error
}

// start runs an export whose backend call blocks until release is closed.
func (f *exportFixture) start(release <-chan struct{}, id string, err error) <-chan exportResult {
	f.backend.On("ExportComments", mock.Anything, mock.AnythingOfType("domain.ExportOptions"), f.userID).
		Run(func(mock.Arguments) { <-release }).
		Return(id, err).Once()

	done := make(chan exportResult, 1)
	go func() {
		id, err := f.svc.ExportComments(context.Background(), domain.ExportOptions{})
		done <- exportResult{id: id, err: err}
	}()
	return done
}

func (f *exportFixture) progressEvents() []int {
	var out []int
	for _, e := range f.rec.Of(domain.EventExportProgress) {
		out = append(out, e.Payload.(domain.ExportProgressed).Progress)
	}
	return out
}

func TestExportService_Progress(t *testing.T) {
	t.Run("simulated progress stops at 90 and completes at 100", func(t *testing.T) {
		f := newExportFixture(t, flagsWith(domain.FeatureExport))
		release := make(chan struct{})
		done := f.start(release, "exp-1", nil)

		for i := 0; i < 9; i++ {
			require.NoError(t, f.clock.WaitAdvance(services.DefaultExportTick, waitFor, 1))
		}
		assert.Eventually(t, func() bool { return f.svc.Job().Progress == 90 }, waitFor, tick)

		f.clock.Advance(10 * services.DefaultExportTick)
		assert.Never(t, func() bool { return f.svc.Job().Progress > 90 }, settle, tick)
		assert.Equal(t, domain.ExportStatusRunning, f.svc.Job().Status)

		close(release)
		var res exportResult
		require.Eventually(t, func() bool {
			select {
			case res = <-done:
				return true
			default:
				return false
			}
		}, waitFor, tick)
		require.NoError(t, res.err)
		assert.Equal(t, "exp-1", res.id)

		job := f.svc.Job()
		assert.Equal(t, 100, job.Progress)
		assert.Equal(t, domain.ExportStatusDone, job.Status)
		assert.Equal(t, "exp-1", job.ExportID)
		assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90}, f.progressEvents())

		f.clock.Advance(services.DefaultExportResetDelay)
		assert.Eventually(t, func() bool {
			job := f.svc.Job()
			return job.Status == domain.ExportStatusIdle && job.Progress == 0
		}, waitFor, tick)

		assert.Equal(t, []domain.EventType{
			domain.EventExportStarted,
			domain.EventExportProgress,
			domain.EventExportComplete,
		}, dedupe(f.rec.Types()))
	})

	t.Run("failure resets progress and stops the simulator", func(t *testing.T) {
		f := newExportFixture(t, flagsWith(domain.FeatureExport))
		release := make(chan struct{})
		done := f.start(release, "", errors.New("storage unavailable"))

		require.NoError(t, f.clock.WaitAdvance(services.DefaultExportTick, waitFor, 1))
		require.NoError(t, f.clock.WaitAdvance(services.DefaultExportTick, waitFor, 1))
		assert.Eventually(t, func() bool { return f.svc.Job().Progress == 20 }, waitFor, tick)

		close(release)
		res := <-done
		require.Error(t, res.err)

		job := f.svc.Job()
		assert.Zero(t, job.Progress)
		assert.Equal(t, domain.ExportStatusIdle, job.Status)
		assert.Equal(t, "storage unavailable", job.LastError)

		emitted := len(f.progressEvents())
		f.clock.Advance(time.Minute)
		assert.Never(t, func() bool { return len(f.progressEvents()) != emitted }, settle, tick)
		assert.Zero(t, f.svc.Job().Progress)

		failed := f.rec.Of(domain.EventExportFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, "storage unavailable", failed[0].Payload.(domain.ExportFailed).Message)
	})

	t.Run("one export at a time", func(t *testing.T) {
		f := newExportFixture(t, flagsWith(domain.FeatureExport))
		release := make(chan struct{})
		done := f.start(release, "exp-1", nil)

		require.Eventually(t, func() bool {
			return f.svc.Job().Status == domain.ExportStatusRunning
		}, waitFor, tick)

		_, err := f.svc.ExportComments(context.Background(), domain.ExportOptions{})
		assert.ErrorIs(t, err, apperrors.ErrExportInProgress)

		close(release)
		assert.NoError(t, (<-done).err)
	})
}

func TestExportService_Gating(t *testing.T) {
	ctx := context.Background()
	f := newExportFixture(t, flagsWith())

	_, err := f.svc.ExportComments(ctx, domain.ExportOptions{})
	assert.ErrorIs(t, err, apperrors.ErrFeatureDisabled)

	_, err = f.svc.ScheduleExport(ctx, domain.ExportOptions{}, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrFeatureDisabled)

	_, err = f.svc.ExportHistory(ctx)
	assert.ErrorIs(t, err, apperrors.ErrFeatureDisabled)

	f.backend.AssertNotCalled(t, "ExportComments")
	f.backend.AssertNotCalled(t, "ScheduleExport")
	f.backend.AssertNotCalled(t, "GetExportHistory")
	assert.Empty(t, f.rec.Events())
	assert.Equal(t, domain.ExportStatusIdle, f.svc.Job().Status)
}

func TestExportService_ScheduleExport(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects past times and bad formats", func(t *testing.T) {
		f := newExportFixture(t, flagsWith(domain.FeatureExport))

		_, err := f.svc.ScheduleExport(ctx, domain.ExportOptions{}, f.clock.Now().Add(-time.Minute))
		assert.ErrorIs(t, err, apperrors.ErrScheduleInPast)

		_, err = f.svc.ScheduleExport(ctx, domain.ExportOptions{Format: "xlsx"}, f.clock.Now().Add(time.Hour))
		assert.ErrorIs(t, err, apperrors.ErrInvalidExportFormat)
	})

	t.Run("fills defaults", func(t *testing.T) {
		f := newExportFixture(t, flagsWith(domain.FeatureExport))
		runAt := f.clock.Now().Add(time.Hour)

		f.backend.On("ScheduleExport", mock.Anything, mock.MatchedBy(func(s domain.ExportSchedule) bool {
			return s.Options.ResourceID == testResource &&
				s.Options.Format == domain.ExportCSV &&
				s.RequestedBy == f.userID &&
				s.RunAt.Equal(runAt)
		})).Return(&domain.ExportSchedule{ID: "sch-1"}, nil)

		schedule, err := f.svc.ScheduleExport(ctx, domain.ExportOptions{}, runAt)

		require.NoError(t, err)
		assert.Equal(t, "sch-1", schedule.ID)
		f.backend.AssertExpectations(t)
	})
}

// dedupe collapses consecutive repeats.
func dedupe[T comparable](in []T) []T {
	var out []T
	for i, v := range in {
		if i == 0 || in[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}

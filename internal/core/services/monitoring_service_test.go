package services_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/eventbus"
	"github.com/lorrc/ups-collab/internal/core/mocks"
	"github.com/lorrc/ups-collab/internal/core/services"
)

func TestMonitoringService(t *testing.T) {
	t.Run("polls immediately and then every interval", func(t *testing.T) {
		bus := eventbus.New(testLogger())
		rec := newRecorder(bus)
		clk := testclock.NewClock(time.Now())
		provider := mocks.NewMockMetricsProvider()

		provider.On("GetMetrics", mock.Anything).Return(domain.MetricsSnapshot{Comments: 1}, nil).Once()
		provider.On("GetMetrics", mock.Anything).Return(domain.MetricsSnapshot{}, errors.New("scrape failed")).Once()
		provider.On("GetMetrics", mock.Anything).Return(domain.MetricsSnapshot{Comments: 3}, nil).Once()

		svc := services.NewMonitoringService(services.MonitoringServiceParams{
			Provider:  provider,
			Publisher: bus,
			Clock:     clk,
			Logger:    testLogger(),
		})
		svc.Start(context.Background())
		svc.Start(context.Background())
		assert.True(t, svc.Running())

		assert.Eventually(t, func() bool { return len(rec.Of(domain.EventMetricsUpdated)) == 1 }, waitFor, tick)

		require.NoError(t, clk.WaitAdvance(services.DefaultMetricsInterval, waitFor, 1))
		require.NoError(t, clk.WaitAdvance(services.DefaultMetricsInterval, waitFor, 1))
		assert.Eventually(t, func() bool { return len(rec.Of(domain.EventMetricsUpdated)) == 2 }, waitFor, tick)

		svc.Stop()
		assert.False(t, svc.Running())

		latest, ok := svc.Latest()
		require.True(t, ok)
		assert.Equal(t, 3, latest.Comments)

		clk.Advance(time.Minute)
		assert.Never(t, func() bool { return len(rec.Of(domain.EventMetricsUpdated)) > 2 }, settle, tick)
		provider.AssertNumberOfCalls(t, "GetMetrics", 3)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		bus := eventbus.New(testLogger())
		clk := testclock.NewClock(time.Now())
		provider := mocks.NewMockMetricsProvider()
		var polls atomic.Int32
		provider.On("GetMetrics", mock.Anything).
			Run(func(mock.Arguments) { polls.Add(1) }).
			Return(domain.MetricsSnapshot{}, nil)

		svc := services.NewMonitoringService(services.MonitoringServiceParams{
			Provider:  provider,
			Publisher: bus,
			Clock:     clk,
			Logger:    testLogger(),
		})
		ctx, cancel := context.WithCancel(context.Background())
		svc.Start(ctx)
		require.NoError(t, clk.WaitAdvance(0, waitFor, 1))

		cancel()
		clk.Advance(time.Minute)
		assert.Never(t, func() bool { return polls.Load() > 1 }, settle, tick)
		svc.Stop()
	})

	t.Run("stop before start is a no-op", func(t *testing.T) {
		svc := services.NewMonitoringService(services.MonitoringServiceParams{
			Provider:  mocks.NewMockMetricsProvider(),
			Publisher: eventbus.New(testLogger()),
			Logger:    testLogger(),
		})
		svc.Stop()

		_, ok := svc.Latest()
		assert.False(t, ok)
	})
}

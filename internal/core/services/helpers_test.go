package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/eventbus"
	"github.com/lorrc/ups-collab/internal/core/mocks"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	settle  = 50 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func newRecorder(bus *eventbus.Bus) *recorder {
	r := &recorder{}
	bus.SubscribeAll(func(_ context.Context, e domain.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
		return nil
	})
	return r
}

func (r *recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) Of(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) Types() []domain.EventType {
	var out []domain.EventType
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}

// flagsWith returns feature flags where only the named features are on.
func flagsWith(enabled ...string) *mocks.MockFeatureFlags {
	on := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		on[name] = true
	}

	flags := mocks.NewMockFeatureFlags()
	for _, name := range []string{domain.FeatureAIInsights, domain.FeatureExport, domain.FeatureCollaboration} {
		flags.On("IsFeatureEnabled", mock.Anything, name).Return(on[name]).Maybe()
	}
	flags.On("Features", mock.Anything).Return(on).Maybe()
	return flags
}

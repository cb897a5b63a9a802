package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// Mutation describes one optimistic write against an entity.
//
// Apply speculatively changes local state before the remote call and Revert
// undoes it when the call fails. Both receive the version allocated to this
// mutation so the state owner can ignore stale work. Commit records the
// confirmed result and Event builds the payload published on success.
type Mutation[T any] struct {
	EntityID  string
	Operation string

	Apply  func(version int64)
	Revert func(version int64)

	Do     func(ctx context.Context) (T, error)
	Commit func(result T, version int64)
	Event  func(result T) domain.EventPayload
}

// Mutator runs optimistic mutations and tracks which entities have writes in flight.
type Mutator struct {
	publisher ports.EventPublisher
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]int
	versions map[string]int64
}

// NewMutator creates a Mutator publishing outcomes through publisher.
func NewMutator(publisher ports.EventPublisher, logger *slog.Logger) *Mutator {
	return &Mutator{
		publisher: publisher,
		logger:    logger.With("component", "mutator"),
		inFlight:  make(map[string]int),
		versions:  make(map[string]int64),
	}
}

// RunMutation executes mut. On success the result is committed and the
// success event published. On failure the local change is reverted, a
// system.error event is published and the original error is returned.
// The entity reports IsUpdating until RunMutation returns.
func RunMutation[T any](ctx context.Context, m *Mutator, mut Mutation[T]) (T, error) {
	var zero T

	if mut.Do == nil {
		return zero, errors.New("mutation has no remote operation")
	}
	if mut.Apply != nil && mut.Revert == nil {
		return zero, apperrors.ErrRevertRequired
	}

	version := m.begin(mut.EntityID)
	defer m.end(mut.EntityID)

	if mut.Apply != nil {
		mut.Apply(version)
	}

	result, err := mut.Do(ctx)
	if err != nil {
		if mut.Revert != nil {
			mut.Revert(version)
		}
		m.logger.WarnContext(ctx, "optimistic mutation failed",
			"entity_id", mut.EntityID,
			"operation", mut.Operation,
			"error", err,
		)
		m.publish(ctx, domain.SystemError{
			EntityID:  mut.EntityID,
			Operation: mut.Operation,
			Message:   err.Error(),
		}, version)
		return zero, err
	}

	if mut.Commit != nil {
		mut.Commit(result, version)
	}
	if mut.Event != nil {
		if payload := mut.Event(result); payload != nil {
			m.publish(ctx, payload, version)
		}
	}

	return result, nil
}

func (m *Mutator) publish(ctx context.Context, payload domain.EventPayload, version int64) {
	event := domain.NewEvent(payload).WithMeta(domain.MetaVersion, strconv.FormatInt(version, 10))
	m.publisher.Publish(ctx, event)
}

func (m *Mutator) begin(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[id]++
	m.versions[id]++
	return m.versions[id]
}

func (m *Mutator) end(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[id] <= 1 {
		delete(m.inFlight, id)
		return
	}
	m.inFlight[id]--
}

// IsUpdating reports whether id has at least one mutation in flight.
func (m *Mutator) IsUpdating(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight[id] > 0
}

// Pending returns the number of entities with mutations in flight.
func (m *Mutator) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

// Version returns the last version allocated for id.
func (m *Mutator) Version(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[id]
}

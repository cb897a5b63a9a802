package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// SavedFiltersKey is the storage key prefix of a user's saved filters.
const SavedFiltersKey = "ups-saved-filters"

// FilterServiceParams wires a FilterService.
type FilterServiceParams struct {
	Store  ports.FilterStore
	UserID uuid.UUID
	Clock  clock.Clock
	Logger *slog.Logger
}

// FilterService keeps a user's named filter presets. The stored set is read
// once on construction and written through on every change.
type FilterService struct {
	store  ports.FilterStore
	key    string
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	filters map[string]domain.SavedFilter
}

// FilterStorageKey returns the storage key holding userID's presets.
func FilterStorageKey(userID uuid.UUID) string {
	return SavedFiltersKey + ":" + userID.String()
}

// NewFilterService loads the user's presets. Unreadable or corrupt data is
// logged and treated as an empty set.
func NewFilterService(ctx context.Context, params FilterServiceParams) *FilterService {
	clk := params.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	s := &FilterService{
		store:   params.Store,
		key:     FilterStorageKey(params.UserID),
		clock:   clk,
		logger:  params.Logger.With("component", "filter_service"),
		filters: make(map[string]domain.SavedFilter),
	}
	s.load(ctx)
	return s
}

func (s *FilterService) load(ctx context.Context) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to read saved filters", "key", s.key, "error", err)
		}
		return
	}

	var saved []domain.SavedFilter
	if err := json.Unmarshal(data, &saved); err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt saved filters", "key", s.key, "error", err)
		return
	}
	for _, f := range saved {
		if f.Name != "" {
			s.filters[f.Name] = f
		}
	}
}

// SaveFilter stores cfg under name, replacing any preset with that name.
func (s *FilterService) SaveFilter(ctx context.Context, name string, cfg domain.FilterConfig) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.ErrFilterNameRequired
	}
	for _, p := range cfg.Priorities {
		if !p.IsValid() {
			return apperrors.ErrInvalidPriority
		}
	}
	for _, st := range cfg.Statuses {
		if !st.IsValid() {
			return apperrors.ErrInvalidStatus
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLocked()
	next[name] = domain.SavedFilter{Name: name, Config: cfg, SavedAt: s.clock.Now().UTC()}
	return s.persistLocked(ctx, next)
}

// DeleteFilter removes a preset.
func (s *FilterService) DeleteFilter(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.filters[name]; !ok {
		return apperrors.ErrFilterNotFound
	}
	next := s.copyLocked()
	delete(next, name)
	return s.persistLocked(ctx, next)
}

// LoadFilter returns the preset saved under name.
func (s *FilterService) LoadFilter(name string) (domain.FilterConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.filters[name]
	if !ok {
		return domain.FilterConfig{}, apperrors.ErrFilterNotFound
	}
	return f.Config, nil
}

// FilterNames returns the preset names in order.
func (s *FilterService) FilterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.filters))
	for name := range s.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SavedFilters returns every preset ordered by name.
func (s *FilterService) SavedFilters() []domain.SavedFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedFilters(s.filters)
}

func (s *FilterService) copyLocked() map[string]domain.SavedFilter {
	next := make(map[string]domain.SavedFilter, len(s.filters)+1)
	for k, v := range s.filters {
		next[k] = v
	}
	return next
}

// persistLocked writes next and installs it only if the write succeeded.
func (s *FilterService) persistLocked(ctx context.Context, next map[string]domain.SavedFilter) error {
	data, err := json.Marshal(sortedFilters(next))
	if err != nil {
		return fmt.Errorf("encode saved filters: %w", err)
	}
	if err := s.store.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("write saved filters: %w", err)
	}
	s.filters = next
	return nil
}

func sortedFilters(filters map[string]domain.SavedFilter) []domain.SavedFilter {
	out := make([]domain.SavedFilter, 0, len(filters))
	for _, f := range filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

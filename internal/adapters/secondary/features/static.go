// Package features answers capability checks from configuration.
package features

import (
	"context"
	"maps"
	"sync"

	"github.com/lorrc/ups-collab/internal/config"
	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// Flags is a fixed set of feature flags. Unknown names are disabled.
type Flags struct {
	mu    sync.RWMutex
	flags map[string]bool
}

var _ ports.FeatureFlags = (*Flags)(nil)

// NewFlags builds the flags from the features config section.
func NewFlags(cfg config.FeaturesConfig) *Flags {
	return &Flags{flags: map[string]bool{
		domain.FeatureAIInsights:    cfg.AIInsights,
		domain.FeatureExport:        cfg.Export,
		domain.FeatureCollaboration: cfg.Collaboration,
	}}
}

// IsFeatureEnabled reports whether name is on.
func (f *Flags) IsFeatureEnabled(_ context.Context, name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.flags[name]
}

// Features returns a copy of every flag.
func (f *Flags) Features(_ context.Context) map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.flags)
}

// Set overrides a flag at runtime.
func (f *Flags) Set(name string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[name] = enabled
}

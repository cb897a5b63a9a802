package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lorrc/ups-collab/internal/config"
	"github.com/lorrc/ups-collab/internal/core/domain"
)

func TestFlags(t *testing.T) {
	ctx := context.Background()
	flags := NewFlags(config.FeaturesConfig{Export: true, Collaboration: true})

	assert.True(t, flags.IsFeatureEnabled(ctx, domain.FeatureExport))
	assert.True(t, flags.IsFeatureEnabled(ctx, domain.FeatureCollaboration))
	assert.False(t, flags.IsFeatureEnabled(ctx, domain.FeatureAIInsights))
	assert.False(t, flags.IsFeatureEnabled(ctx, "unknown"))

	all := flags.Features(ctx)
	assert.Equal(t, map[string]bool{
		domain.FeatureAIInsights:    false,
		domain.FeatureExport:        true,
		domain.FeatureCollaboration: true,
	}, all)

	all[domain.FeatureAIInsights] = true
	assert.False(t, flags.IsFeatureEnabled(ctx, domain.FeatureAIInsights), "returned map is a copy")

	flags.Set(domain.FeatureAIInsights, true)
	assert.True(t, flags.IsFeatureEnabled(ctx, domain.FeatureAIInsights))
}

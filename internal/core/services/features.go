package services

import (
	"context"

	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// requireFeature fails with a FeatureDisabledError unless the flag is on.
// It must run before any remote call of the gated operation.
func requireFeature(ctx context.Context, flags ports.FeatureFlags, name string) error {
	if flags == nil || !flags.IsFeatureEnabled(ctx, name) {
		return apperrors.NewFeatureDisabledError(name)
	}
	return nil
}

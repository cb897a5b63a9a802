package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

// DefaultRetryBaseDelay is the delay after the first failed attempt. The
// delay after attempt n is n times this.
const DefaultRetryBaseDelay = time.Second

// Retrier retries operations with a linearly growing delay.
type Retrier struct {
	clock  clock.Clock
	base   time.Duration
	logger *slog.Logger
}

// NewRetrier creates a Retrier. Zero values select the wall clock and the
// default base delay.
func NewRetrier(clk clock.Clock, base time.Duration, logger *slog.Logger) *Retrier {
	if clk == nil {
		clk = clock.WallClock
	}
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	return &Retrier{
		clock:  clk,
		base:   base,
		logger: logger.With("component", "retrier"),
	}
}

// Retry calls op up to maxAttempts times and returns its first success.
// Feature-disabled errors are returned at once. When every attempt fails
// the last error is returned.
func Retry[T any](ctx context.Context, r *Retrier, maxAttempts int, op func(ctx context.Context) (T, error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result T
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			result, err = op(ctx)
			return err
		},
		IsFatalError: isFatalForRetry,
		NotifyFunc: func(err error, attempt int) {
			r.logger.DebugContext(ctx, "attempt failed", "attempt", attempt, "error", err)
		},
		Attempts: maxAttempts,
		Delay:    r.base,
		BackoffFunc: func(_ time.Duration, attempt int) time.Duration {
			return r.base * time.Duration(attempt)
		},
		Clock: r.clock,
		Stop:  ctx.Done(),
	})
	if err == nil {
		return result, nil
	}

	var zero T
	switch {
	case retry.IsRetryStopped(err):
		return zero, ctx.Err()
	case retry.IsAttemptsExceeded(err):
		return zero, retry.LastError(err)
	}
	return zero, err
}

func isFatalForRetry(err error) bool {
	return errors.Is(err, apperrors.ErrFeatureDisabled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

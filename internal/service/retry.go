package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/observability"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// DefaultMaxAttempts bounds internal retries after a concurrency conflict.
const DefaultMaxAttempts = 3

// retryOnConflict reruns fn while it fails with ErrConcurrencyConflict.
// Each attempt must open its own transaction.
func retryOnConflict(ctx context.Context, attempts int, operation string, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, workflow.ErrConcurrencyConflict) {
			return err
		}

		observability.WorkflowConflicts().WithLabelValues(operation).Inc()
		logger.Debug().Err(err).Str("operation", operation).Int("attempt", attempt).Msg("concurrency conflict")

		if ctx.Err() != nil {
			break
		}
	}
	return err
}

// withLock runs fn while holding key.
func withLock(ctx context.Context, locker lock.Locker, key string, fn func() error) error {
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %w", workflow.ErrConcurrencyConflict, err)
	}
	defer release()
	return fn()
}

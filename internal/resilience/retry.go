package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig controls the exponential backoff schedule used by [Retry].
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	// Zero means the default of 3.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Doubles per attempt.
	// Zero means the default of 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means the default of 5s.
	MaxDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	return c
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff between
// tries, respecting ctx cancellation during the waits. op names the operation
// in logs and the final error.
func Retry(ctx context.Context, op string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		slog.Debug("operation failed, retrying",
			"op", op, "attempt", attempt, "delay", delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("%s: %d attempts failed: %w", op, cfg.MaxAttempts, lastErr)
}

// RetryWithResult is the result-returning variant of [Retry].
func RetryWithResult[R any](ctx context.Context, op string, cfg RetryConfig, fn func() (R, error)) (R, error) {
	var result R
	err := Retry(ctx, op, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

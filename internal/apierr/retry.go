package apierr

import (
	"context"
	"fmt"
	"time"
)

// Default retry configuration.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// RetryConfig holds retry parameters for exponential backoff.
//
// Invalid values are normalized:
//   - MaxAttempts < 1 becomes 1 (single attempt)
//   - BaseDelay <= 0 becomes 1ms
//   - MaxDelay <= 0 becomes BaseDelay
type RetryConfig struct {
	// MaxAttempts is the total number of calls, first try included.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnAttempt is called before every attempt (1-based).
	OnAttempt func(attempt, maxAttempts int)
	// OnRetry is called after a retryable failure, before sleeping.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// normalize ensures all RetryConfig fields have valid values.
func (c *RetryConfig) normalize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based):
// base, 2*base, 4*base, ... capped at max. It never overflows, whatever attempt is.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Millisecond
	}
	if max < base {
		max = base
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d > max/2 {
			return max
		}
		d *= 2
	}
	return min(d, max)
}

// RetryWithBackoff executes fn with exponential backoff retry.
// It retries only if shouldRetry returns true for the error, and makes at most
// cfg.MaxAttempts calls. The context passed to fn is the caller's context.
//
// Invalid RetryConfig values are normalized (see RetryConfig documentation).
func RetryWithBackoff[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(ctx context.Context, attempt int) (T, error),
	shouldRetry func(error) bool,
) (T, int, error) {
	cfg.normalize()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, cfg.MaxAttempts)
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}

		lastErr = err
		if !shouldRetry(lastErr) {
			return zero, attempt, lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Backoff(cfg.BaseDelay, cfg.MaxDelay, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, cfg.MaxAttempts, fmt.Errorf("max attempts (%d) exhausted: %w", cfg.MaxAttempts, lastErr)
}

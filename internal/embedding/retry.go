package embedding

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig configures bounded exponential backoff with jitter.
type RetryConfig struct {
	MaxAttempts int           // Total attempts, including the first call
	BaseDelay   time.Duration // Delay cap before the first retry
	MaxDelay    time.Duration // Upper bound on the backoff delay
	Multiplier  float64       // Exponential growth factor
}

// DefaultRetryConfig returns sensible defaults for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// Retry executes fn with bounded exponential backoff and full jitter: each
// wait is drawn uniformly from (0, delay]. Non-retryable provider faults and
// context cancellation stop the loop early.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Retryable() {
			return zero, err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := time.Duration(rand.Int64N(int64(delay))) + 1
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

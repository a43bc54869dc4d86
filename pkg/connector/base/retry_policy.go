package base

import (
	"context"
	"time"

	"github.com/ajitpratap0/formsync/pkg/errors"
)

// RetryPolicy defines retry behavior for idempotent reads. Writes are never
// retried: a timed out write may still have landed.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// ReadRetryPolicy retries a read once after a short pause
func ReadRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 2, Delay: 250 * time.Millisecond}
}

// NoRetry runs the function exactly once
func NoRetry() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// Execute runs fn, retrying only network errors
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) || attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(rp.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

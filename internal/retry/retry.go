package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks an error that must not be retried
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Execute gives up immediately
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// RetryPolicy handles retry logic with exponential backoff
type RetryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewRetryPolicy creates a new retry policy
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     30 * time.Second,
	}
}

// Execute runs fn until it succeeds, returns a permanent error, the attempts
// run out, or ctx is cancelled
func (r *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := r.initialDelay

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}

		lastErr = err

		// Don't sleep after last attempt
		if attempt < r.maxAttempts {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
			case <-timer.C:
			}

			delay = time.Duration(float64(delay) * 1.5)
			if delay > r.maxDelay {
				delay = r.maxDelay
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", r.maxAttempts, lastErr)
}

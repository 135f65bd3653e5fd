package fault

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds adapter-level retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry; later retries double it.
	BaseBackoff time.Duration

	// Jitter adds up to this fraction of the backoff as random slack.
	Jitter float64
}

// DefaultRetryPolicy is the adapter policy: 3 retries, 250ms base, 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseBackoff: 250 * time.Millisecond,
		Jitter:      0.2,
	}
}

// Retry runs fn until it succeeds, returns a non-retriable error, or the
// policy is exhausted. Backoff doubles per attempt with jitter. Context
// cancellation interrupts the wait and surfaces as Cancelled/Timeout.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	backoff := policy.BaseBackoff
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff
			if policy.Jitter > 0 {
				delay += time.Duration(rand.Float64() * policy.Jitter * float64(backoff))
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return FromContext(ctx)
			}
			backoff *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetriable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

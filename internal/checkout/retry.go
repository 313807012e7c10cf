package checkout

import (
	"context"
	"time"
)

// RetryPolicy bounds the internal retry of transient gateway failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries a transient failure once.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 1,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   2 * time.Second,
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<(attempt-1))
	if p.MaxDelay > 0 {
		delay = min(delay, p.MaxDelay)
	}
	return delay
}

// withRetry runs fn and repeats it while it fails with a transient error,
// up to p.MaxRetries extra attempts. It never retries once ctx is done.
func withRetry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	for attempt := 1; err != nil && IsRetryable(err) && attempt <= p.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return result, err
		}
		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
		result, err = fn(ctx)
	}
	return result, err
}

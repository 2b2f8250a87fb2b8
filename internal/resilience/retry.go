package resilience

import (
	"context"
	"math"
	"time"
)

// Default retry values.
const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = 100 * time.Millisecond
	DefaultMaxDelay          = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryPolicy configures retries of a fallible operation.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps every delay.
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay between attempts.
	BackoffMultiplier float64

	// Retryable decides whether an error may consume another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Retryable:         IsRetryable,
	}
}

// NoRetry returns a policy with a single attempt.
func NoRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 1
	return p
}

// normalised fills zero values with defaults.
func (p RetryPolicy) normalised() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	return p
}

// Delay returns the wait before attempt n+1, where n is the number of the
// attempt that just failed (1-based): min(base * mult^(n-1), max).
func (p RetryPolicy) Delay(n int) time.Duration {
	p = p.normalised()
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(n-1))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the production Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are exhausted. It returns the number of attempts made.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	return retry(ctx, p, sleepContext, fn)
}

func retry(ctx context.Context, p RetryPolicy, sleep Sleeper, fn func(ctx context.Context) error) (int, error) {
	p = p.normalised()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return attempt - 1, err
			}
			return attempt - 1, ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !p.Retryable(err) || attempt == p.MaxAttempts {
			return attempt, err
		}
		if sleepErr := sleep(ctx, p.Delay(attempt)); sleepErr != nil {
			return attempt, err
		}
	}
	return p.MaxAttempts, err
}

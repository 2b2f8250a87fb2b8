package resilience

import (
	"context"
	"time"
)

// Executor runs operations through a named circuit breaker and a retry policy.
type Executor struct {
	breakers *BreakerRegistry
	sleep    Sleeper
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock sets the time source used by the breakers.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.breakers.now = now
	}
}

// WithSleeper replaces the backoff sleep, e.g. to make tests instantaneous.
func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) {
		e.sleep = s
	}
}

// NewExecutor creates an executor whose breakers use cfg.
func NewExecutor(cfg BreakerConfig, opts ...ExecutorOption) *Executor {
	e := &Executor{
		breakers: NewBreakerRegistry(cfg),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breaker returns the breaker guarding name.
func (e *Executor) Breaker(name string) *CircuitBreaker {
	return e.breakers.Get(name)
}

// Breakers returns the executor's breaker registry.
func (e *Executor) Breakers() *BreakerRegistry {
	return e.breakers
}

// Execute runs fn under the breaker for name, retrying per policy.
// Each attempt passes through the breaker, so an open circuit stops the
// retry loop. It returns the number of attempts made.
func (e *Executor) Execute(
	ctx context.Context,
	name string,
	policy RetryPolicy,
	fn func(ctx context.Context) error,
) (int, error) {
	breaker := e.breakers.Get(name)
	return retry(ctx, policy, e.sleep, func(ctx context.Context) error {
		return breaker.Execute(ctx, fn)
	})
}

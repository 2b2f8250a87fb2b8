package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

func newTestExecutor(clock *fakeClock) *Executor {
	return NewExecutor(BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
	}, WithClock(clock.now), WithSleeper(func(ctx context.Context, time.Duration) error {
		return ctx.Err()
	}))
}

func TestExecutor_RetriesThenSucceeds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e := NewExecutor(DefaultBreakerConfig(), WithClock(clock.now), WithSleeper(func(context.Context, time.Duration) error {
		return nil
	}))

	calls := 0
	attempts, err := e.Execute(context.Background(), "tool:tag", DefaultRetryPolicy(), func(context.Context) error {
		calls++
		if calls == 1 {
			return domain.TransientError(errors.New("busy"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, StateClosed, e.Breaker("tool:tag").State())
}

func TestExecutor_OpenCircuitStopsRetries(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e := newTestExecutor(clock)

	p := DefaultRetryPolicy()
	p.MaxAttempts = 5
	calls := 0
	attempts, err := e.Execute(context.Background(), "tool:flaky", p, func(context.Context) error {
		calls++
		return domain.TransientError(errors.New("down"))
	})

	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateOpen, e.Breaker("tool:flaky").State())
}

func TestExecutor_BreakersAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e := newTestExecutor(clock)
	ctx := context.Background()

	_, _ = e.Execute(ctx, "a", NoRetry(), fail)
	_, _ = e.Execute(ctx, "a", NoRetry(), fail)
	require.Equal(t, StateOpen, e.Breaker("a").State())

	attempts, err := e.Execute(ctx, "b", NoRetry(), succeed)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

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

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
	})
	b.now = clock.now
	return b
}

var errBoom = domain.TransientError(errors.New("boom"))

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateClosed, b.State())

	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ValidationErrorsDoNotCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error {
			return domain.NewValidationError("bad")
		})
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	clock.advance(9 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	clock.advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.advance(10 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.advance(10 * time.Second)

	err := b.Execute(ctx, func(ctx context.Context) error {
		// A concurrent caller during the trial is rejected.
		return b.Execute(ctx, succeed)
	})
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
}

func TestBreaker_Fallback(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}

	var fallbackErr error
	err := b.ExecuteWithFallback(ctx, succeed, func(_ context.Context, err error) error {
		fallbackErr = err
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, fallbackErr, domain.ErrCircuitOpen)

	// Fallback is not used for ordinary failures.
	clock.advance(10 * time.Second)
	err = b.ExecuteWithFallback(ctx, fail, func(context.Context, error) error {
		t.Fatal("fallback must not run")
		return nil
	})
	assert.ErrorIs(t, err, errBoom)
}

func TestBreakerRegistry(t *testing.T) {
	r := NewBreakerRegistry(DefaultBreakerConfig())

	a := r.Get("tool:search")
	assert.Same(t, a, r.Get("tool:search"))
	assert.NotSame(t, a, r.Get("tool:ingest"))

	states := r.States()
	assert.Equal(t, map[string]BreakerState{
		"tool:search": StateClosed,
		"tool:ingest": StateClosed,
	}, states)
}

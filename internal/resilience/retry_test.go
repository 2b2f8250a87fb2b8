package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(500))
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0

	attempts, err := retry(context.Background(), DefaultRetryPolicy(), s.sleep, func(context.Context) error {
		calls++
		if calls < 3 {
			return domain.TransientError(errors.New("busy"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, s.delays)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0

	attempts, err := retry(context.Background(), DefaultRetryPolicy(), s.sleep, func(context.Context) error {
		calls++
		return domain.NewValidationError("bad input")
	})

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.delays)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	s := &recordingSleeper{}
	p := DefaultRetryPolicy()
	p.MaxAttempts = 4

	attempts, err := retry(context.Background(), p, s.sleep, func(context.Context) error {
		return fmt.Errorf("write: %w", domain.ErrLockTimeout)
	})

	require.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Equal(t, 4, attempts)
	assert.Len(t, s.delays, 3)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := retry(ctx, DefaultRetryPolicy(), (&recordingSleeper{}).sleep, func(context.Context) error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestRetry_CancelDuringBackoffReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transient := domain.TransientError(errors.New("busy"))

	attempts, err := retry(ctx, DefaultRetryPolicy(), func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}, func(context.Context) error {
		return transient
	})

	require.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 1, attempts)
}

func TestNoRetry(t *testing.T) {
	attempts, err := Retry(context.Background(), NoRetry(), func(context.Context) error {
		return domain.TransientError(errors.New("busy"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// BreakerState is a state of the circuit breaker.
type BreakerState string

// Breaker states.
const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// Default breaker values.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultRecoveryTimeout  = 30 * time.Second
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes that closes it.
	SuccessThreshold int

	// RecoveryTimeout is how long the circuit stays open before a trial call.
	RecoveryTimeout time.Duration

	// IsFailure decides whether an error counts against the circuit.
	// Defaults to counting everything except validation and permission errors,
	// which say nothing about the health of the operation.
	IsFailure func(error) bool
}

// DefaultBreakerConfig returns the configuration used when none is given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
	}
}

func (c BreakerConfig) normalised() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAsFailure
	}
	return c
}

func countsAsFailure(err error) bool {
	switch Classify(err).Class {
	case domain.ClassValidation, domain.ClassPermission:
		return false
	default:
		return true
	}
}

// CircuitBreaker short-circuits a named operation after repeated failures.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	trial     bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg.normalised(),
		now:   time.Now,
		state: StateClosed,
	}
}

// Name returns the operation name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the current state, promoting open to half-open once the
// recovery timeout has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// refresh moves open to half-open after the recovery timeout (caller must hold lock).
func (b *CircuitBreaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.transition(StateHalfOpen)
	}
}

// transition changes state and resets counters (caller must hold lock).
func (b *CircuitBreaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	logger.Debug("Circuit %s: %s -> %s", b.name, b.state, to)
	b.state = to
	b.failures = 0
	b.successes = 0
	b.trial = false
	if to == StateOpen {
		b.openedAt = b.now()
	}
}

// allow reserves a call slot. Half-open permits a single trial at a time.
func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()

	switch b.state {
	case StateOpen:
		return fmt.Errorf("%s: %w", b.name, domain.ErrCircuitOpen)
	case StateHalfOpen:
		if b.trial {
			return fmt.Errorf("%s: trial in progress: %w", b.name, domain.ErrCircuitOpen)
		}
		b.trial = true
	}
	return nil
}

// record registers the outcome of a call admitted by allow.
func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && b.cfg.IsFailure(err)

	switch b.state {
	case StateClosed:
		if failed {
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.transition(StateOpen)
			}
			return
		}
		b.failures = 0

	case StateHalfOpen:
		b.trial = false
		if failed {
			b.transition(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// Execute runs fn if the circuit admits it.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteWithFallback runs fn, calling fallback when the circuit is open.
func (b *CircuitBreaker) ExecuteWithFallback(
	ctx context.Context,
	fn func(ctx context.Context) error,
	fallback func(ctx context.Context, err error) error,
) error {
	err := b.Execute(ctx, fn)
	if err != nil && fallback != nil && errors.Is(err, domain.ErrCircuitOpen) {
		return fallback(ctx, err)
	}
	return err
}

// BreakerRegistry lazily creates one breaker per operation name.
type BreakerRegistry struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates a registry whose breakers share cfg.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		now:      time.Now,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it if needed.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewCircuitBreaker(name, r.cfg)
		b.now = r.now
		r.breakers[name] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	names := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		names = append(names, b)
	}
	r.mu.Unlock()

	out := make(map[string]BreakerState, len(names))
	for _, b := range names {
		out[b.Name()] = b.State()
	}
	return out
}

package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// DefaultWriteTimeout bounds the wait for the writer lease.
const DefaultWriteTimeout = 30 * time.Second

// GateEventKind names a write gate transition.
type GateEventKind string

// Write gate transitions reported to a GateObserver.
const (
	GateAcquired GateEventKind = "acquired"
	GateReleased GateEventKind = "released"
	GateTimedOut GateEventKind = "timed_out"
)

// GateEvent is reported to a GateObserver on every lease transition.
type GateEvent struct {
	Kind   GateEventKind
	Waited time.Duration
	At     time.Time
}

// GateObserver receives write gate events. It runs while the gate is held
// and must not call back into the store.
type GateObserver func(GateEvent)

type leaseKey struct{}

// lease is carried in the context of the holder.
type lease struct {
	gate *writeGate

	mu       sync.Mutex
	released bool
}

func (l *lease) active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.released
}

// writeGate is a single token with a bounded wait. Reads acquire it too.
type writeGate struct {
	token    chan struct{}
	timeout  time.Duration
	observer GateObserver
}

func newWriteGate(timeout time.Duration, observer GateObserver) *writeGate {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &writeGate{
		token:    make(chan struct{}, 1),
		timeout:  timeout,
		observer: observer,
	}
}

func (g *writeGate) notify(kind GateEventKind, waited time.Duration) {
	if g.observer != nil {
		g.observer(GateEvent{Kind: kind, Waited: waited, At: time.Now()})
	}
}

// acquire returns a context carrying the lease and its release func.
// If ctx already carries an active lease on this gate, it is reused and the
// release func is a no-op.
func (g *writeGate) acquire(ctx context.Context) (context.Context, func(), error) {
	if l, ok := ctx.Value(leaseKey{}).(*lease); ok && l.gate == g && l.active() {
		return ctx, func() {}, nil
	}

	start := time.Now()
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.token <- struct{}{}:
	case <-timer.C:
		g.notify(GateTimedOut, time.Since(start))
		return ctx, nil, fmt.Errorf("waited %s for store: %w", g.timeout, domain.ErrWriteTimeout)
	case <-ctx.Done():
		return ctx, nil, ctx.Err()
	}

	g.notify(GateAcquired, time.Since(start))

	l := &lease{gate: g}
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			l.released = true
			l.mu.Unlock()
			g.notify(GateReleased, 0)
			<-g.token
		})
	}
	return context.WithValue(ctx, leaseKey{}, l), release, nil
}

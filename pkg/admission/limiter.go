// Package admission bounds how many chunk fetch-and-store operations run at
// once. The limit is independent of how many chunks an export plans: it
// exists to respect the remote API's concurrency budget, not local CPU.
//
// Acquisition is scoped: every Acquire returns a Token whose Release must be
// called exactly once, on every exit path. Release is guarded so a duplicate
// call cannot corrupt the slot count.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for admission control.
var (
	admissionInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duckport_admission_in_flight",
		Help: "Number of admission tokens currently held",
	})

	admissionWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_admission_waits_total",
		Help: "Total number of acquires that had to wait for a free slot",
	})
)

// ErrInvalidLimit is returned when a limiter is created with a non-positive
// concurrency limit.
var ErrInvalidLimit = errors.New("concurrency limit must be positive")

// Limiter is a counting admission-control primitive. At most the configured
// number of tokens are outstanding at any instant; further acquires block
// until a slot frees. Waiters are served in whatever order the runtime wakes
// them; no fairness guarantee beyond that.
type Limiter struct {
	slots chan struct{}
}

// New creates a limiter admitting at most maxConcurrent holders.
func New(maxConcurrent int) (*Limiter, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, maxConcurrent)
	}
	return &Limiter{
		slots: make(chan struct{}, maxConcurrent),
	}, nil
}

// Acquire blocks until a slot is free or the context is done. On success the
// returned token owns one slot until its Release is called.
func (l *Limiter) Acquire(ctx context.Context) (*Token, error) {
	// Fast path avoids counting a wait when a slot is already free.
	select {
	case l.slots <- struct{}{}:
	default:
		admissionWaitsTotal.Inc()
		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	admissionInFlight.Inc()
	return &Token{limiter: l}, nil
}

// InFlight returns the number of tokens currently held. Intended for tests
// and diagnostics; the value is stale the moment it is read.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}

// Token is a scoped admission permit. Release returns the slot; only the
// first call has an effect.
type Token struct {
	limiter *Limiter
	once    sync.Once
}

// Release frees the token's slot. Safe to call from a deferred statement on
// every exit path, including after an earlier explicit Release.
func (t *Token) Release() {
	t.once.Do(func() {
		<-t.limiter.slots
		admissionInFlight.Dec()
	})
}

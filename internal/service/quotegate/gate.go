// Package quotegate serializes access to the upstream quote vendor. The
// vendor is not safe for concurrent invocation: overlapping calls return
// responses whose rows are mixed between symbols. Every code path that talks
// to the vendor must run inside the gate.
package quotegate

import (
	"context"
	"sync/atomic"
	"time"
)

// Option configures a Gate.
type Option func(*Gate)

// WithWaitObserver installs a callback invoked with the seconds a caller
// spent waiting for the gate.
func WithWaitObserver(fn func(seconds float64)) Option {
	return func(g *Gate) {
		g.onWait = fn
	}
}

// Gate is a process-wide exclusive-access primitive. The zero value is not
// usable; construct with New.
type Gate struct {
	sem    chan struct{}
	cur    atomic.Int32
	max    atomic.Int32
	onWait func(seconds float64)
}

func New(opts ...Option) *Gate {
	g := &Gate{sem: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire blocks until the gate is free or ctx is done. On success the caller
// owns the gate and must call Release exactly once.
func (g *Gate) Acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if g.onWait != nil {
		g.onWait(time.Since(start).Seconds())
	}
	n := g.cur.Add(1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			break
		}
	}
	return nil
}

// Release frees the gate. Must be paired with a successful Acquire.
func (g *Gate) Release() {
	g.cur.Add(-1)
	<-g.sem
}

// Do runs fn while holding the gate and releases it unconditionally,
// including when fn returns an error or panics.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Holders returns the current holder count (0 or 1).
func (g *Gate) Holders() int {
	return int(g.cur.Load())
}

// MaxHolders returns the maximum concurrent holder count ever observed.
// It must never exceed 1.
func (g *Gate) MaxHolders() int {
	return int(g.max.Load())
}

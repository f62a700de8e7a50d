// Package aggregator fans out live-value lookups over the watch-list and
// publishes the merged result as one immutable map.
package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
)

// Lookup resolves the live value of one watched entry.
type Lookup interface {
	Supports(source models.Source) bool
	LiveValue(ctx context.Context, entry models.WatchEntry) (float64, error)
}

// Observer receives cycle outcomes, typically for metrics.
type Observer interface {
	ObserveCycle(elapsed time.Duration, requested, succeeded int)
}

// Subscriber is the part of the watch-list the aggregator listens to.
type Subscriber interface {
	Entries() []models.WatchEntry
	Subscribe(fn func(entries []models.WatchEntry)) (cancel func())
}

// Aggregator runs live-value cycles. Each cycle's result replaces the
// previous map whole.
type Aggregator struct {
	lookup       Lookup
	timeout      time.Duration
	maxWorkers   int
	discardStale bool
	observer     Observer

	values        atomic.Pointer[models.LiveValues]
	seq           atomic.Uint64
	mu            sync.Mutex
	lastCommitted uint64

	subMu     sync.Mutex
	listeners []func(models.LiveValues)

	wg sync.WaitGroup
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout bounds each individual lookup.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithMaxWorkers caps concurrent lookups; 0 means unbounded.
func WithMaxWorkers(n int) Option {
	return func(a *Aggregator) { a.maxWorkers = n }
}

// WithDiscardStale drops a cycle result that started before the last
// committed cycle.
func WithDiscardStale(on bool) Option {
	return func(a *Aggregator) { a.discardStale = on }
}

// WithObserver attaches a cycle observer.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// New creates an Aggregator with an empty map.
func New(lookup Lookup, opts ...Option) *Aggregator {
	a := &Aggregator{lookup: lookup, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	empty := models.LiveValues{}
	a.values.Store(&empty)
	return a
}

type result struct {
	key   models.LiveKey
	value float64
	ok    bool
}

// Refresh looks up every supported entry concurrently and waits for all
// lookups to settle. Failed lookups and unsupported sources are omitted.
// The merged map is published and returned.
func (a *Aggregator) Refresh(ctx context.Context, entries []models.WatchEntry) models.LiveValues {
	seq := a.seq.Add(1)
	start := time.Now()

	p := pool.NewWithResults[result]()
	if a.maxWorkers > 0 {
		p = p.WithMaxGoroutines(a.maxWorkers)
	}

	requested := 0
	for _, e := range entries {
		if !a.lookup.Supports(e.Source) {
			continue
		}
		requested++
		e := e
		p.Go(func() result {
			lctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			v, err := a.lookup.LiveValue(lctx, e)
			if err != nil {
				logger.Debug("Live lookup for %s failed: %v", e.Key(), err)
				return result{}
			}
			return result{key: e.Key(), value: v, ok: true}
		})
	}

	next := make(models.LiveValues, requested)
	for _, r := range p.Wait() {
		if r.ok {
			next[r.key] = r.value
		}
	}

	elapsed := time.Since(start)
	logger.Debug("Live cycle %d: %d/%d lookups succeeded in %v", seq, len(next), requested, elapsed)
	if a.observer != nil {
		a.observer.ObserveCycle(elapsed, requested, len(next))
	}

	a.commit(seq, next)
	return next
}

func (a *Aggregator) commit(seq uint64, next models.LiveValues) {
	a.mu.Lock()
	if a.discardStale && seq < a.lastCommitted {
		a.mu.Unlock()
		logger.Debug("Discarding stale live cycle %d", seq)
		return
	}
	if seq > a.lastCommitted {
		a.lastCommitted = seq
	}
	a.values.Store(&next)
	a.mu.Unlock()

	a.subMu.Lock()
	fns := append([]func(models.LiveValues){}, a.listeners...)
	a.subMu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}

// Reset publishes an empty map without any lookups.
func (a *Aggregator) Reset() {
	a.commit(a.seq.Add(1), models.LiveValues{})
}

// Trigger runs a cycle for entries in the background. An empty list
// performs no lookups and resets the map.
func (a *Aggregator) Trigger(ctx context.Context, entries []models.WatchEntry) {
	if len(entries) == 0 {
		a.Reset()
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Refresh(ctx, entries)
	}()
}

// Attach runs a cycle now and whenever the watch-list changes. The returned
// func detaches.
func (a *Aggregator) Attach(ctx context.Context, list Subscriber) (detach func()) {
	cancel := list.Subscribe(func(entries []models.WatchEntry) {
		a.Trigger(ctx, entries)
	})
	a.Trigger(ctx, list.Entries())
	return cancel
}

// Wait blocks until background cycles finish.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// Values returns the current map. It must not be modified.
func (a *Aggregator) Values() models.LiveValues {
	return *a.values.Load()
}

// Value returns the live value of (source, id) if present.
func (a *Aggregator) Value(source models.Source, id string) (float64, bool) {
	return a.Values().Get(source, id)
}

// OnCommit registers fn to run after every published map.
func (a *Aggregator) OnCommit(fn func(models.LiveValues)) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/gamepulse/internal/logger"
)

// Observer receives refresh outcomes, typically for metrics.
type Observer interface {
	ObserveFetch(panel string, elapsed time.Duration, err error)
	ObserveDiscard(panel string)
}

// PanelConfig configures a Panel.
type PanelConfig struct {
	// DiscardStale drops a result whose tick started before the tick of the
	// last committed result. When false the last result to arrive wins.
	DiscardStale bool
	// OnChange is called after every accepted commit or failure.
	OnChange func(name string)
	Observer Observer
	Now      func() time.Time
}

// PanelState is a snapshot of one panel's refresh session.
type PanelState[T any] struct {
	Name      string    `json:"name"`
	Data      T         `json:"data"`
	Loading   bool      `json:"loading"`
	Errored   bool      `json:"error"`
	LastError string    `json:"last_error,omitempty"`
	Committed bool      `json:"committed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Handle is the type-erased view of a Panel.
type Handle interface {
	Name() string
	State() any
	Refresh(ctx context.Context)
	Close()
}

// Panel keeps the most recently committed result of a refresh session.
// After Close, commits and failures are ignored.
type Panel[T any] struct {
	name    string
	cfg     PanelConfig
	session *Session

	mu            sync.Mutex
	state         PanelState[T]
	seq           uint64
	lastCommitted uint64
	closed        bool
	fetch         func(ctx context.Context) (T, error)
}

// NewPanel creates a panel whose data is initial until the first commit.
func NewPanel[T any](name string, initial T, cfg PanelConfig) *Panel[T] {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Panel[T]{
		name:    name,
		cfg:     cfg,
		session: NewSession(name),
		state:   PanelState[T]{Name: name, Data: initial},
	}
}

// Name returns the panel name.
func (p *Panel[T]) Name() string { return p.name }

// Session returns the panel's refresh session.
func (p *Panel[T]) Session() *Session { return p.session }

// NextSeq reserves the sequence number of a new tick.
func (p *Panel[T]) NextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// Commit stores data produced by tick seq. It reports whether the result
// was accepted.
func (p *Panel[T]) Commit(seq uint64, data T) bool {
	p.mu.Lock()
	if p.closed || p.stale(seq) {
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			p.discarded()
		}
		return false
	}
	p.state.Data = data
	p.state.Committed = true
	p.state.Errored = false
	p.state.Loading = false
	p.state.UpdatedAt = p.cfg.Now()
	if seq > p.lastCommitted {
		p.lastCommitted = seq
	}
	p.mu.Unlock()

	p.changed()
	return true
}

// Fail records a failed tick. The previous data is kept; the error flag is
// raised only if nothing has ever been committed.
func (p *Panel[T]) Fail(seq uint64, err error) bool {
	p.mu.Lock()
	if p.closed || p.stale(seq) {
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			p.discarded()
		}
		return false
	}
	p.state.Loading = false
	p.state.LastError = err.Error()
	p.state.Errored = !p.state.Committed
	p.mu.Unlock()

	logger.Warn("Refresh of %s failed: %v", p.name, err)
	p.changed()
	return true
}

func (p *Panel[T]) stale(seq uint64) bool {
	return p.cfg.DiscardStale && seq < p.lastCommitted
}

func (p *Panel[T]) discarded() {
	logger.Debug("Discarding stale result for %s", p.name)
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveDiscard(p.name)
	}
}

func (p *Panel[T]) changed() {
	if p.cfg.OnChange != nil {
		p.cfg.OnChange(p.name)
	}
}

// Snapshot returns a copy of the current state.
func (p *Panel[T]) Snapshot() PanelState[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// State implements Handle.
func (p *Panel[T]) State() any { return p.Snapshot() }

// Run starts the panel's session with fetch on sched. A nil sched fetches
// once.
func (p *Panel[T]) Run(ctx context.Context, fetch func(ctx context.Context) (T, error), sched cron.Schedule) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.fetch = fetch
	p.state.Loading = !p.state.Committed
	p.mu.Unlock()

	p.session.Start(ctx, p.tick, sched)
}

// RunEvery is Run with a fixed interval; interval <= 0 fetches once.
func (p *Panel[T]) RunEvery(ctx context.Context, fetch func(ctx context.Context) (T, error), interval time.Duration) {
	var sched cron.Schedule
	if interval > 0 {
		sched = Interval(interval)
	}
	p.Run(ctx, fetch, sched)
}

// Refresh runs one extra tick outside the schedule. It blocks until the
// tick settles.
func (p *Panel[T]) Refresh(ctx context.Context) {
	p.tick(ctx)
}

func (p *Panel[T]) tick(ctx context.Context) {
	p.mu.Lock()
	fetch, closed := p.fetch, p.closed
	p.mu.Unlock()
	if fetch == nil || closed {
		return
	}

	seq := p.NextSeq()
	start := time.Now()
	data, err := fetch(ctx)
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveFetch(p.name, time.Since(start), err)
	}
	if err != nil {
		p.Fail(seq, err)
		return
	}
	p.Commit(seq, data)
}

// Close stops the timer and tears the panel down. Results of in-flight
// ticks that arrive later are dropped.
func (p *Panel[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.session.Stop()
}

// Closed reports whether the panel was torn down.
func (p *Panel[T]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

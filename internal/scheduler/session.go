// Package scheduler runs periodic refresh sessions. A Session owns one timer
// and invokes its fetch function immediately and then on every tick; a Panel
// holds the most recently committed result of such a session.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/gamepulse/internal/logger"
)

// FetchFunc is one refresh invocation. It is called in its own goroutine
// and may overlap with earlier invocations.
type FetchFunc func(ctx context.Context)

// Interval is a cron.Schedule firing at a fixed delay after each tick.
// Unlike cron.Every it does not round to whole seconds.
type Interval time.Duration

// Next implements cron.Schedule.
func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// ParseSchedule parses a standard five-field cron expression or a
// descriptor such as "@every 10m" or "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Session is a start/stop periodic refresh unit. The zero value is not
// usable; call NewSession.
type Session struct {
	id   string
	name string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	invocations atomic.Int64
	inFlight    atomic.Int64
}

// NewSession creates a stopped session.
func NewSession(name string) *Session {
	return &Session{id: uuid.NewString(), name: name}
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Start invokes fn once immediately and then at every time produced by
// sched until Stop is called or ctx is cancelled. A nil sched invokes fn
// once. Starting a running session stops the previous timer first.
//
// Stopping cancels only the timer. Invocations already launched keep ctx
// and run to completion.
func (s *Session) Start(ctx context.Context, fn FetchFunc, sched cron.Schedule) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	// Each Start displaces exactly one predecessor.
	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
		logger.Debug("Session %s (%s) restarted", s.name, s.id)
	}

	logger.Debug("Session %s (%s) started", s.name, s.id)
	s.invoke(ctx, fn)

	if sched == nil {
		close(done)
		return
	}
	go s.loop(loopCtx, ctx, fn, sched, done)
}

// StartEvery is Start with a fixed interval. An interval <= 0 invokes fn
// once and arms no timer.
func (s *Session) StartEvery(ctx context.Context, fn FetchFunc, interval time.Duration) {
	var sched cron.Schedule
	if interval > 0 {
		sched = Interval(interval)
	}
	s.Start(ctx, fn, sched)
}

func (s *Session) loop(loopCtx, fetchCtx context.Context, fn FetchFunc, sched cron.Schedule, done chan struct{}) {
	defer close(done)

	now := time.Now()
	for {
		next := sched.Next(now)
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-loopCtx.Done():
			timer.Stop()
			return
		case now = <-timer.C:
			if loopCtx.Err() != nil {
				return
			}
			s.invoke(fetchCtx, fn)
		}
	}
}

func (s *Session) invoke(ctx context.Context, fn FetchFunc) {
	s.invocations.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Add(-1)
		fn(ctx)
	}()
}

// Stop cancels the timer and waits for the timer goroutine to exit. It is
// safe to call on a stopped session and more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Debug("Session %s (%s) stopped", s.name, s.id)
}

// Running reports whether a timer is armed.
func (s *Session) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the timer goroutine exits. It does not wait for
// in-flight invocations.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Invocations returns how many times fn has been launched.
func (s *Session) Invocations() int64 { return s.invocations.Load() }

// InFlight returns how many invocations have not returned yet.
func (s *Session) InFlight() int64 { return s.inFlight.Load() }

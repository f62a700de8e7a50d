// Package trend routes "show trend" selections from any panel to the single
// chart consumer and keeps that chart's state.
package trend

import (
	"sync"

	"github.com/rewired-gh/gamepulse/internal/models"
)

// Router holds the one selected trend target. Every Select overwrites the
// slot; there is no queueing.
type Router struct {
	mu      sync.Mutex
	target  models.TrendTarget
	present bool

	notifyMu  sync.Mutex
	subMu     sync.Mutex
	listeners map[int]func(models.TrendTarget, bool)
	nextID    int
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{listeners: make(map[int]func(models.TrendTarget, bool))}
}

// Select makes (id, name, source) the current target, replacing any open one.
func (r *Router) Select(id, name string, source models.Source) {
	r.set(models.TrendTarget{ID: id, Name: name, Source: source}, true)
}

// Clear empties the slot.
func (r *Router) Clear() {
	r.set(models.TrendTarget{}, false)
}

func (r *Router) set(t models.TrendTarget, present bool) {
	r.mu.Lock()
	r.target, r.present = t, present
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.subMu.Lock()
	fns := make([]func(models.TrendTarget, bool), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(t, present)
	}
}

// Current returns the selected target and whether one is set.
func (r *Router) Current() (models.TrendTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target, r.present
}

// Subscribe registers fn to be called after every Select or Clear, in call
// order. fn must not call Select or Clear.
func (r *Router) Subscribe(fn func(target models.TrendTarget, ok bool)) (cancel func()) {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.listeners, id)
			r.subMu.Unlock()
		})
	}
}

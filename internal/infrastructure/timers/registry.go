package timers

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// Registry keeps at most one pending timer per key. Scheduling a key that
// already has a timer cancels the old one first.
type Registry struct {
	clock clock.Clock

	mu     sync.Mutex
	gen    uint64
	timers map[string]*entry
}

type entry struct {
	timer clock.Timer
	gen   uint64
}

// NewRegistry creates a registry driven by clk. A nil clock means wall time.
func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Registry{
		clock:  clk,
		timers: make(map[string]*entry),
	}
}

// Schedule runs fn once after d unless the key is cancelled or rescheduled
// before then. fn runs on its own goroutine.
func (r *Registry) Schedule(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[key]; ok {
		old.timer.Stop()
	}

	r.gen++
	gen := r.gen
	r.timers[key] = &entry{
		gen:   gen,
		timer: r.clock.AfterFunc(d, func() { r.fire(key, gen, fn) }),
	}
}

// fire drops callbacks from timers that were replaced or cancelled after
// their alarm had already gone off.
func (r *Registry) fire(key string, gen uint64, fn func()) {
	r.mu.Lock()
	current, ok := r.timers[key]
	if !ok || current.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.timers, key)
	r.mu.Unlock()

	fn()
}

// Cancel stops the timer for key. It reports whether one was pending.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.timers, key)
	return true
}

// CancelAll stops every pending timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.timers {
		e.timer.Stop()
		delete(r.timers, key)
	}
}

// Pending reports whether key has a timer that has not fired yet.
func (r *Registry) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[key]
	return ok
}

// Len returns the number of pending timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

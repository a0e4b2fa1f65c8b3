// File: fake/reactor.go
// Package fake provides hand-rolled test doubles for the library contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor is a manual-step api.Reactor: nothing runs until the test calls
// Step, FireRead, FireWrite or FireTimer, so driver behavior stays fully
// deterministic. Post is safe from any goroutine, matching the contract;
// everything else belongs to the test goroutine, which stands in for the
// loop goroutine.

package fake

import (
	"errors"
	"sync"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// Watch is a recorded readiness registration.
type Watch struct {
	r         *Reactor
	fd        int
	write     bool
	fn        func(api.EventMask)
	cancelled bool
}

// Cancel implements api.Watch.
func (w *Watch) Cancel() {
	if w.cancelled {
		return
	}
	w.cancelled = true
	if w.write {
		if w.r.Writes[w.fd] == w {
			delete(w.r.Writes, w.fd)
		}
		return
	}
	if w.r.Reads[w.fd] == w {
		delete(w.r.Reads, w.fd)
	}
}

// Timer is a recorded single-shot timer registration.
type Timer struct {
	D         time.Duration
	fn        func()
	fired     bool
	cancelled bool
}

// Cancel implements api.Timer.
func (t *Timer) Cancel() {
	if !t.fired {
		t.cancelled = true
	}
}

// Live reports whether the timer is still pending.
func (t *Timer) Live() bool { return !t.fired && !t.cancelled }

// Reactor is the manual-step reactor double. Watch and timer registrations
// are exposed as inspectable fields. The posted queue honors the Post
// contract and may be filled from any goroutine; everything else belongs
// to the test goroutine.
type Reactor struct {
	Reads  map[int]*Watch
	Writes map[int]*Watch
	Timers []*Timer

	mu       sync.Mutex
	posted   []func()
	closed   bool
	watchErr error
	running  bool
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor returns an empty manual-step reactor.
func NewReactor() *Reactor {
	return &Reactor{
		Reads:  make(map[int]*Watch),
		Writes: make(map[int]*Watch),
	}
}

// FailNextWatch makes the next WatchRead or WatchWrite call fail with err.
func (r *Reactor) FailNextWatch(err error) { r.watchErr = err }

// Close makes further Post calls fail, mimicking a stopped loop.
func (r *Reactor) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// WatchRead implements api.Reactor.
func (r *Reactor) WatchRead(fd int, fn func(api.EventMask)) (api.Watch, error) {
	if r.watchErr != nil {
		err := r.watchErr
		r.watchErr = nil
		return nil, err
	}
	if _, dup := r.Reads[fd]; dup {
		return nil, errors.New("fake: duplicate read watch")
	}
	w := &Watch{r: r, fd: fd, fn: fn}
	r.Reads[fd] = w
	return w, nil
}

// WatchWrite implements api.Reactor.
func (r *Reactor) WatchWrite(fd int, fn func(api.EventMask)) (api.Watch, error) {
	if r.watchErr != nil {
		err := r.watchErr
		r.watchErr = nil
		return nil, err
	}
	if _, dup := r.Writes[fd]; dup {
		return nil, errors.New("fake: duplicate write watch")
	}
	w := &Watch{r: r, fd: fd, write: true, fn: fn}
	r.Writes[fd] = w
	return w, nil
}

// After implements api.Reactor. The timer never fires on its own; tests
// fire it through FireTimer.
func (r *Reactor) After(d time.Duration, fn func()) (api.Timer, error) {
	t := &Timer{D: d, fn: fn}
	r.Timers = append(r.Timers, t)
	return t, nil
}

// Post implements api.Reactor by queueing fn for the next Step.
func (r *Reactor) Post(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrReactorClosed
	}
	r.posted = append(r.posted, fn)
	return nil
}

// Running implements api.Reactor. The fake reports not-running by
// default, so driver teardown executes inline on the test goroutine;
// SetRunning overrides that for tests that drive the posted path.
func (r *Reactor) Running() bool { return r.running }

// SetRunning overrides the Running report.
func (r *Reactor) SetRunning(v bool) { r.running = v }

// Step runs the currently queued posted functions and reports how many
// ran. Functions posted while stepping run on the next Step.
func (r *Reactor) Step() int {
	r.mu.Lock()
	q := r.posted
	r.posted = nil
	r.mu.Unlock()
	for _, fn := range q {
		fn()
	}
	return len(q)
}

// StepAll steps until the post queue stays empty.
func (r *Reactor) StepAll() int {
	total := 0
	for {
		n := r.Step()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Pending returns the number of queued posted functions.
func (r *Reactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posted)
}

// HasRead reports whether a live read watch exists for fd.
func (r *Reactor) HasRead(fd int) bool { _, ok := r.Reads[fd]; return ok }

// HasWrite reports whether a live write watch exists for fd.
func (r *Reactor) HasWrite(fd int) bool { _, ok := r.Writes[fd]; return ok }

// WatchCount returns the total number of live watches.
func (r *Reactor) WatchCount() int { return len(r.Reads) + len(r.Writes) }

// FireRead invokes fd's read watch callback with read readiness,
// reporting whether such a watch existed.
func (r *Reactor) FireRead(fd int) bool {
	w := r.Reads[fd]
	if w == nil {
		return false
	}
	w.fn(api.EventRead)
	return true
}

// FireWrite invokes fd's write watch callback with write readiness.
func (r *Reactor) FireWrite(fd int) bool {
	w := r.Writes[fd]
	if w == nil {
		return false
	}
	w.fn(api.EventWrite)
	return true
}

// FireError delivers an error event through one of fd's watches, read
// direction first.
func (r *Reactor) FireError(fd int) bool {
	if w := r.Reads[fd]; w != nil {
		w.fn(api.EventError)
		return true
	}
	if w := r.Writes[fd]; w != nil {
		w.fn(api.EventError)
		return true
	}
	return false
}

// LiveTimers counts timers that are neither fired nor cancelled.
func (r *Reactor) LiveTimers() int {
	n := 0
	for _, t := range r.Timers {
		if t.Live() {
			n++
		}
	}
	return n
}

// FireTimer fires the oldest live timer, reporting whether one existed.
func (r *Reactor) FireTimer() bool {
	for _, t := range r.Timers {
		if t.Live() {
			t.fired = true
			t.fn()
			return true
		}
	}
	return false
}

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop is the platform-neutral core of the event loop. It owns the watch
// table, the timer heap and the post queue, and dispatches readiness from
// the platform backend to the registered callbacks. All callbacks run on
// the goroutine that called Run; WatchRead, WatchWrite, After and Cancel
// are intended for that goroutine, while Post and Close may be called
// from anywhere.

package reactor

import (
	"container/heap"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

const maxEvents = 128

// backend is the platform readiness facility behind a Loop. Watches are
// level-triggered: a descriptor keeps reporting until drained.
type backend interface {
	add(fd int, read, write bool) error
	mod(fd int, read, write bool) error
	del(fd int) error
	// wait blocks up to timeout (negative blocks indefinitely) and fills
	// evs with ready descriptors, the wakeup channel excluded.
	wait(evs []backendEvent, timeout time.Duration) (int, error)
	wake() error
	close() error
}

// backendEvent is one ready descriptor reported by the backend.
type backendEvent struct {
	fd   int
	mask api.EventMask
}

// Loop implements api.Reactor on top of a platform backend.
type Loop struct {
	logger *log.Logger
	be     backend

	pin bool

	mu       sync.Mutex
	fds      map[int]*fdEntry
	timers   timerHeap
	timerSeq uint64
	posted   []func()
	closed   bool
	started  bool
	running  bool

	finOnce sync.Once
	doneCh  chan struct{}
}

var _ api.Reactor = (*Loop)(nil)
var _ api.GracefulShutdown = (*Loop)(nil)

// fdEntry holds the at-most-one read and at-most-one write watch of a
// descriptor.
type fdEntry struct {
	read  *watch
	write *watch
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithPinnedThread locks Run to its OS thread for the lifetime of the
// loop, keeping backend wakeups and timer dispatch on one kernel thread.
func WithPinnedThread() Option {
	return func(lp *Loop) {
		lp.pin = true
	}
}

// NewLoop creates a stopped event loop. Call Run on a dedicated goroutine
// to start dispatching.
func NewLoop(opts ...Option) (*Loop, error) {
	l := &Loop{
		logger: log.Default(),
		fds:    make(map[int]*fdEntry),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	be, err := newBackend()
	if err != nil {
		return nil, err
	}
	l.be = be
	return l, nil
}

// Run executes the loop until Close. It dispatches descriptor readiness,
// posted functions and due timers, in that order, each full pass. Returns
// nil after a clean Close, or the backend error that stopped the loop.
func (l *Loop) Run() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return api.ErrReactorClosed
	}
	if l.started {
		l.mu.Unlock()
		return errors.New("reactor: loop already running")
	}
	l.started = true
	l.running = true
	l.mu.Unlock()

	if l.pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	evs := make([]backendEvent, maxEvents)
	var runErr error
	for {
		timeout := l.nextTimeout()
		n, err := l.be.wait(evs, timeout)
		if err != nil {
			runErr = fmt.Errorf("reactor: wait: %w", err)
			break
		}
		l.dispatch(evs[:n])
		l.runPosted()
		l.fireTimers(time.Now())
		l.mu.Lock()
		stop := l.closed
		l.mu.Unlock()
		if stop {
			break
		}
	}
	l.finish()
	return runErr
}

// Close stops the loop and releases the backend. Remaining posted
// functions run before Close returns, so posted teardown work always
// completes. Safe to call multiple times, but never from the loop
// goroutine itself: Close blocks until the loop has stopped.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.doneCh
		return nil
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	if started {
		if err := l.be.wake(); err != nil {
			l.logger.Printf("[reactor] close wakeup: %v", err)
		}
		<-l.doneCh
		return nil
	}
	// Never ran; tear down inline.
	l.finish()
	return nil
}

// Shutdown implements api.GracefulShutdown. The loop holds no in-flight
// work of its own beyond the posted queue, which Close drains.
func (l *Loop) Shutdown() error { return l.Close() }

// finish drains the post queue one last time and releases the backend.
func (l *Loop) finish() {
	l.finOnce.Do(func() {
		l.runPosted()
		l.mu.Lock()
		l.running = false
		l.posted = nil
		l.mu.Unlock()
		if err := l.be.close(); err != nil {
			l.logger.Printf("[reactor] backend close: %v", err)
		}
		close(l.doneCh)
	})
}

// Running implements api.Reactor.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// WatchRead implements api.Reactor.
func (l *Loop) WatchRead(fd int, fn func(api.EventMask)) (api.Watch, error) {
	return l.addWatch(fd, false, fn)
}

// WatchWrite implements api.Reactor.
func (l *Loop) WatchWrite(fd int, fn func(api.EventMask)) (api.Watch, error) {
	return l.addWatch(fd, true, fn)
}

func (l *Loop) addWatch(fd int, write bool, fn func(api.EventMask)) (api.Watch, error) {
	if fn == nil {
		return nil, errors.New("reactor: nil watch callback")
	}
	if fd < 0 {
		return nil, fmt.Errorf("reactor: invalid descriptor %d", fd)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, api.ErrReactorClosed
	}
	ent := l.fds[fd]
	if ent == nil {
		ent = &fdEntry{}
		l.fds[fd] = ent
	}
	slot := &ent.read
	if write {
		slot = &ent.write
	}
	if *slot != nil {
		return nil, fmt.Errorf("reactor: descriptor %d already watched for %s", fd, direction(write))
	}
	hadAny := ent.read != nil || ent.write != nil
	w := &watch{loop: l, fd: fd, write: write, fn: fn}
	*slot = w
	var err error
	if hadAny {
		err = l.be.mod(fd, ent.read != nil, ent.write != nil)
	} else {
		err = l.be.add(fd, ent.read != nil, ent.write != nil)
	}
	if err != nil {
		*slot = nil
		if !hadAny {
			delete(l.fds, fd)
		}
		return nil, fmt.Errorf("reactor: watch %s fd %d: %w", direction(write), fd, err)
	}
	return w, nil
}

func direction(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// After implements api.Reactor. The callback fires once on the loop
// goroutine at or after d from now; d <= 0 fires on the next pass.
func (l *Loop) After(d time.Duration, fn func()) (api.Timer, error) {
	if fn == nil {
		return nil, errors.New("reactor: nil timer callback")
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, api.ErrReactorClosed
	}
	l.timerSeq++
	t := &loopTimer{
		loop: l,
		when: time.Now().Add(d),
		seq:  l.timerSeq,
		fn:   fn,
	}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	// The wait deadline may have moved up.
	if err := l.be.wake(); err != nil {
		l.logger.Printf("[reactor] timer wakeup: %v", err)
	}
	return t, nil
}

// Post implements api.Reactor. fn runs on the loop goroutine on its next
// pass; functions posted before Run starts are carried until it does, and
// Close runs whatever is still queued.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return errors.New("reactor: nil posted function")
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return api.ErrReactorClosed
	}
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	if err := l.be.wake(); err != nil {
		l.logger.Printf("[reactor] post wakeup: %v", err)
	}
	return nil
}

// nextTimeout computes how long the backend may sleep.
func (l *Loop) nextTimeout() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.posted) > 0 {
		return 0
	}
	if l.timers.Len() == 0 {
		return -1
	}
	d := time.Until(l.timers[0].when)
	if d < 0 {
		return 0
	}
	return d
}

// dispatch invokes watch callbacks for ready descriptors. Callback
// pointers are copied out under the lock and invoked without it, so
// callbacks are free to mutate the watch table.
func (l *Loop) dispatch(evs []backendEvent) {
	for _, ev := range evs {
		var rfn, wfn func(api.EventMask)
		l.mu.Lock()
		if ent := l.fds[ev.fd]; ent != nil {
			if ent.read != nil {
				rfn = ent.read.fn
			}
			if ent.write != nil {
				wfn = ent.write.fn
			}
		}
		l.mu.Unlock()

		mask := ev.mask
		switch {
		case mask.Readable() || mask.Writable():
			if rfn != nil && mask.Readable() {
				l.safeCall(rfn, mask&^api.EventWrite)
			}
			if wfn != nil && mask.Writable() {
				l.safeCall(wfn, mask&^api.EventRead)
			}
		case mask.Failed():
			// Pure error readiness goes to one callback; read wins.
			if rfn != nil {
				l.safeCall(rfn, mask)
			} else if wfn != nil {
				l.safeCall(wfn, mask)
			}
		}
	}
}

// safeCall shields the loop from a panicking callback.
func (l *Loop) safeCall(fn func(api.EventMask), mask api.EventMask) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("[reactor] watch callback panic: %v", r)
		}
	}()
	fn(mask)
}

// runPosted executes the queued posted functions. Functions posted while
// running land in the next batch.
func (l *Loop) runPosted() {
	for {
		l.mu.Lock()
		q := l.posted
		l.posted = nil
		l.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			l.safeRun(fn)
		}
	}
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("[reactor] posted function panic: %v", r)
		}
	}()
	fn()
}

// fireTimers pops and runs every timer due at now. Cancelled timers were
// already removed from the heap, so whatever pops is live.
func (l *Loop) fireTimers(now time.Time) {
	var fire []func()
	l.mu.Lock()
	for l.timers.Len() > 0 {
		t := l.timers[0]
		if t.when.After(now) {
			break
		}
		heap.Pop(&l.timers)
		t.fired = true
		fire = append(fire, t.fn)
	}
	l.mu.Unlock()
	for _, fn := range fire {
		l.safeRun(fn)
	}
}

// watch is a live readiness registration.
type watch struct {
	loop   *Loop
	fd     int
	write  bool
	fn     func(api.EventMask)
	cancel sync.Once
}

var _ api.Watch = (*watch)(nil)

// Cancel implements api.Watch. A callback already dispatched when Cancel
// returns may still run once.
func (w *watch) Cancel() {
	w.cancel.Do(func() {
		l := w.loop
		l.mu.Lock()
		defer l.mu.Unlock()
		ent := l.fds[w.fd]
		if ent == nil {
			return
		}
		if w.write {
			if ent.write != w {
				return
			}
			ent.write = nil
		} else {
			if ent.read != w {
				return
			}
			ent.read = nil
		}
		var err error
		if ent.read == nil && ent.write == nil {
			delete(l.fds, w.fd)
			if !l.closed {
				err = l.be.del(w.fd)
			}
		} else if !l.closed {
			err = l.be.mod(w.fd, ent.read != nil, ent.write != nil)
		}
		if err != nil {
			l.logger.Printf("[reactor] unwatch %s fd %d: %v", direction(w.write), w.fd, err)
		}
	})
}

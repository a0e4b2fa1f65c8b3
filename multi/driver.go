// File: multi/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Driver owns the engine binding for one reactor association. All engine
// and bookkeeping mutation happens on the reactor loop goroutine: Submit,
// Cancel and Close are thin Post shims and safe from any goroutine. The
// engine itself is never entered reentrantly; callback-originated work
// that would re-enter it is posted back onto the loop instead.

package multi

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// Source yields a request for submission, locking itself against further
// mutation until the transfer retires. transfer.Handle satisfies it.
type Source interface {
	Acquire() (*api.Request, error)
}

// socketWatch tracks the reactor watches registered for one socket. The
// direction set always mirrors the engine's last request for that socket.
type socketWatch struct {
	read  api.Watch
	write api.Watch
}

// Driver is the bridge between one engine and one reactor. Exactly one
// driver binds an engine for the engine's lifetime.
type Driver struct {
	reactor api.Reactor
	engine  api.Engine
	logger  *log.Logger
	maxConc int

	// Loop-confined state. Touched off-loop only during teardown after the
	// reactor is gone.
	watches  map[int]*socketWatch
	timer    api.Timer
	pending  map[*api.Request]*Operation
	waitq    []*Operation
	inFlight int

	done      chan struct{}
	closeOnce sync.Once
}

// New binds engine to reactor and returns the driver. The engine must be
// unbound; its callbacks point back at this driver for its entire
// lifetime.
func New(r api.Reactor, e api.Engine, opts ...Option) (*Driver, error) {
	if r == nil {
		return nil, fmt.Errorf("multi: nil reactor")
	}
	if e == nil {
		return nil, fmt.Errorf("multi: nil engine")
	}
	d := &Driver{
		reactor: r,
		engine:  e,
		logger:  log.Default(),
		watches: make(map[int]*socketWatch),
		pending: make(map[*api.Request]*Operation),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := e.Bind(d.onSocket, d.onTimer); err != nil {
		return nil, fmt.Errorf("multi: bind engine: %w", err)
	}
	return d, nil
}

// Submit hands one transfer to the driver. The returned operation resolves
// when the engine reports the transfer finished, when it is cancelled, or
// when the driver closes. An engine rejection (malformed request) resolves
// the operation immediately with the engine's code without registering a
// completion entry.
//
// Submit never blocks; the reactor drives all progress once the engine's
// sockets and timers fire.
func (d *Driver) Submit(src Source) (*Operation, error) {
	if src == nil {
		return nil, api.ErrHandleInvalid
	}
	if d.isClosed() {
		return nil, api.ErrDriverClosed
	}
	req, err := src.Acquire()
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, api.ErrHandleInvalid
	}
	op := &Operation{driver: d, req: req, done: make(chan struct{})}
	if err := d.reactor.Post(func() { d.add(op) }); err != nil {
		// The loop is gone; resolve here so the caller never hangs.
		op.fulfill(api.CodeAborted, api.Wrap(api.CodeAborted, err, "reactor rejected submission"))
	}
	return op, nil
}

// SubmitRequest submits a raw engine-facing request, bypassing handle
// lifecycle guards. The request's result block is reset first.
func (d *Driver) SubmitRequest(req *api.Request) (*Operation, error) {
	if req == nil {
		return nil, api.ErrHandleInvalid
	}
	return d.Submit(rawSource{req})
}

type rawSource struct{ req *api.Request }

func (s rawSource) Acquire() (*api.Request, error) {
	s.req.Info = api.ResponseInfo{}
	return s.req, nil
}

// Close resolves every pending and queued operation with CodeAborted,
// cancels all watches and the timer slot, then closes the engine, in that
// order. It blocks until teardown ran on the loop and is idempotent.
// Close must not be called from a reactor callback.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		if !d.reactor.Running() {
			// No loop goroutine; nothing else touches driver state.
			d.teardown()
			return
		}
		fin := make(chan struct{})
		if err := d.reactor.Post(func() { d.teardown(); close(fin) }); err != nil {
			d.teardown()
			close(fin)
		}
		<-fin
	})
	return nil
}

func (d *Driver) isClosed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// add runs on the loop: admit or queue one submitted operation.
func (d *Driver) add(op *Operation) {
	if d.isClosed() {
		op.fulfill(api.CodeAborted, api.Wrap(api.CodeAborted, api.ErrDriverClosed, "driver closed"))
		return
	}
	if _, dup := d.pending[op.req]; dup {
		op.fulfill(api.CodeBadValue, api.Wrap(api.CodeBadValue, api.ErrAlreadySubmitted, "request already pending"))
		return
	}
	if d.maxConc > 0 && d.inFlight >= d.maxConc {
		d.waitq = append(d.waitq, op)
		return
	}
	d.start(op)
}

// start runs on the loop: add to the engine and register the completion
// entry. An Add failure resolves the operation without registering one.
func (d *Driver) start(op *Operation) {
	if err := d.engine.Add(op.req); err != nil {
		op.fulfill(api.CodeOf(err), err)
		return
	}
	d.pending[op.req] = op
	d.inFlight++
	d.drain()
}

// admit runs on the loop: start queued submissions while capacity allows.
func (d *Driver) admit() {
	for len(d.waitq) > 0 && (d.maxConc == 0 || d.inFlight < d.maxConc) {
		op := d.waitq[0]
		d.waitq = d.waitq[1:]
		d.start(op)
	}
}

// socketAction runs on the loop: feed one socket's readiness into the
// engine, then collect whatever finished.
func (d *Driver) socketAction(fd int, events api.EventMask) {
	if d.isClosed() {
		return
	}
	if err := d.engine.Drive(fd, events); err != nil {
		d.logger.Printf("[multi] drive fd=%d: %v", fd, err)
	}
	d.drain()
}

// driveTimeout runs on the loop: clock-driven engine pass.
func (d *Driver) driveTimeout() {
	if d.isClosed() {
		return
	}
	if err := d.engine.DriveTimeout(); err != nil {
		d.logger.Printf("[multi] drive timeout: %v", err)
	}
	d.drain()
}

// drain pops the engine's finished-transfer queue until empty and resolves
// the matching completion entries. A finished request with no entry is
// logged and dropped, never fatal: a completion can legitimately race a
// cancellation that already removed it.
func (d *Driver) drain() {
	for {
		msg, ok := d.engine.Next()
		if !ok {
			return
		}
		op, ok := d.pending[msg.Request]
		if !ok {
			url := "<nil>"
			if msg.Request != nil {
				url = msg.Request.URL
			}
			d.logger.Printf("[multi] drain: no pending operation for finished transfer url=%q code=%v", url, msg.Code)
			continue
		}
		delete(d.pending, msg.Request)
		d.inFlight--
		op.fulfill(msg.Code, msg.Err)
		d.admit()
	}
}

// cancel runs on the loop: withdraw one operation before completion.
func (d *Driver) cancel(op *Operation) {
	if _, ok := d.pending[op.req]; ok {
		delete(d.pending, op.req)
		d.inFlight--
		if err := d.engine.Remove(op.req); err != nil {
			d.logger.Printf("[multi] remove cancelled transfer: %v", err)
		}
		op.fulfill(api.CodeAborted, api.Errorf(api.CodeAborted, "transfer cancelled"))
		d.drain()
		d.admit()
		return
	}
	for i, queued := range d.waitq {
		if queued == op {
			d.waitq = append(d.waitq[:i], d.waitq[i+1:]...)
			op.fulfill(api.CodeAborted, api.Errorf(api.CodeAborted, "transfer cancelled"))
			return
		}
	}
	// Already completed or never registered; nothing to do.
}

// teardown runs on the loop (or inline once the loop is gone). Completion
// entries resolve first so no continuation can observe released reactor
// state, then watches and the timer slot go, then the engine.
func (d *Driver) teardown() {
	for req, op := range d.pending {
		delete(d.pending, req)
		op.fulfill(api.CodeAborted, api.Wrap(api.CodeAborted, api.ErrDriverClosed, "driver closed"))
	}
	d.inFlight = 0
	for _, op := range d.waitq {
		op.fulfill(api.CodeAborted, api.Wrap(api.CodeAborted, api.ErrDriverClosed, "driver closed"))
	}
	d.waitq = nil
	for fd, sw := range d.watches {
		if sw.read != nil {
			sw.read.Cancel()
		}
		if sw.write != nil {
			sw.write.Cancel()
		}
		delete(d.watches, fd)
	}
	if d.timer != nil {
		d.timer.Cancel()
		d.timer = nil
	}
	if err := d.engine.Close(); err != nil {
		d.logger.Printf("[multi] engine close: %v", err)
	}
}

// onSocket is the engine's socket-update callback. It reconciles the
// registered watch set for fd against the requested direction set:
// missing directions are created, dropped ones cancelled, and WatchRemove
// erases the entry wholesale.
func (d *Driver) onSocket(fd int, what api.SocketUpdate) {
	sw := d.watches[fd]
	if what == api.WatchRemove {
		if sw == nil {
			return
		}
		if sw.read != nil {
			sw.read.Cancel()
		}
		if sw.write != nil {
			sw.write.Cancel()
		}
		delete(d.watches, fd)
		return
	}
	if sw == nil {
		sw = &socketWatch{}
		d.watches[fd] = sw
	}
	wantRead := what == api.WatchRead || what == api.WatchReadWrite
	wantWrite := what == api.WatchWrite || what == api.WatchReadWrite
	if !wantRead && sw.read != nil {
		sw.read.Cancel()
		sw.read = nil
	}
	if !wantWrite && sw.write != nil {
		sw.write.Cancel()
		sw.write = nil
	}
	if wantRead && sw.read == nil {
		w, err := d.reactor.WatchRead(fd, func(ev api.EventMask) { d.socketAction(fd, ev) })
		if err != nil {
			d.watchFailed(fd, err)
			return
		}
		sw.read = w
	}
	if wantWrite && sw.write == nil {
		w, err := d.reactor.WatchWrite(fd, func(ev api.EventMask) { d.socketAction(fd, ev) })
		if err != nil {
			d.watchFailed(fd, err)
			return
		}
		sw.write = w
	}
}

// watchFailed applies the registration failure policy: drop whatever is
// registered for fd and deliver an error drive on the next loop pass, so
// the engine fails the transfers multiplexed on that socket. The drive is
// posted, never run here: onSocket fires from inside an engine call.
func (d *Driver) watchFailed(fd int, err error) {
	d.logger.Printf("[multi] watch registration failed fd=%d: %v", fd, err)
	if sw := d.watches[fd]; sw != nil {
		if sw.read != nil {
			sw.read.Cancel()
		}
		if sw.write != nil {
			sw.write.Cancel()
		}
		delete(d.watches, fd)
	}
	if perr := d.reactor.Post(func() { d.socketAction(fd, api.EventError) }); perr != nil {
		d.logger.Printf("[multi] post error drive fd=%d: %v", fd, perr)
	}
}

// onTimer is the engine's wakeup callback. One timer slot: every request
// supersedes the previous one. A zero duration posts the timeout drive to
// the next scheduling opportunity instead of running it reentrantly.
func (d *Driver) onTimer(dur time.Duration) {
	if d.timer != nil {
		d.timer.Cancel()
		d.timer = nil
	}
	switch {
	case dur < 0:
		return
	case dur == 0:
		if err := d.reactor.Post(d.driveTimeout); err != nil {
			d.logger.Printf("[multi] post timeout drive: %v", err)
		}
	default:
		t, err := d.reactor.After(dur, func() {
			d.timer = nil
			d.driveTimeout()
		})
		if err != nil {
			d.logger.Printf("[multi] arm timer %v: %v", dur, err)
			return
		}
		d.timer = t
	}
}

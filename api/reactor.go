// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the external event-loop reactor the
// transfer driver integrates with. The production implementation lives in
// the reactor package (epoll on Linux); tests use the fake package.

package api

import "time"

// EventMask describes socket readiness observed by a reactor watch.
type EventMask int

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventError
)

// Readable reports whether the mask includes read readiness.
func (m EventMask) Readable() bool { return m&EventRead != 0 }

// Writable reports whether the mask includes write readiness.
func (m EventMask) Writable() bool { return m&EventWrite != 0 }

// Failed reports whether the mask carries an error condition (EPOLLERR or
// peer hangup class events).
func (m EventMask) Failed() bool { return m&EventError != 0 }

// Watch is a live readiness registration for one direction on one socket.
// A watch stays armed after firing until Cancel is called; Cancel is
// idempotent and must be callable from the loop goroutine.
type Watch interface {
	Cancel()
}

// Timer is a pending single-shot timer registration. Cancel is idempotent;
// cancelling an already-fired timer is a no-op.
type Timer interface {
	Cancel()
}

// Reactor is the host event loop contract consumed by the multi driver.
//
// All watch and timer callbacks fire on the loop goroutine, one at a time.
// Post schedules fn on the loop goroutine and never runs it inline, even
// when called from the loop itself; this is the reentrancy barrier the
// timeout bridge relies on.
type Reactor interface {
	// WatchRead registers interest in read readiness on fd. The returned
	// watch stays armed until cancelled.
	WatchRead(fd int, fn func(EventMask)) (Watch, error)

	// WatchWrite registers interest in write readiness on fd.
	WatchWrite(fd int, fn func(EventMask)) (Watch, error)

	// After arms a single-shot timer firing fn after d.
	After(d time.Duration, fn func()) (Timer, error)

	// Post queues fn for execution on the loop goroutine.
	Post(fn func()) error

	// Running reports whether the loop goroutine is currently executing.
	// When false, posted work will not run until it starts; callers that
	// must run teardown to completion use this to fall back to inline
	// execution.
	Running() bool
}

// File: api/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contract between the multi driver and the transfer engine. The engine
// owns all protocol work (connecting, request write, response parse); it
// never touches the reactor itself. Instead it reports which sockets it
// wants monitored and when it wants a clock wakeup through the two bound
// callbacks, and the driver feeds readiness back in through Drive and
// DriveTimeout. Finished transfers queue up behind Next.

package api

import "time"

// SocketUpdate is the engine's request to change monitoring on a socket.
type SocketUpdate int

const (
	// WatchRead asks for read readiness only.
	WatchRead SocketUpdate = iota
	// WatchWrite asks for write readiness only.
	WatchWrite
	// WatchReadWrite asks for both directions.
	WatchReadWrite
	// WatchRemove withdraws all interest in the socket; the engine will not
	// reference the descriptor again unless it re-requests a watch.
	WatchRemove
)

// String returns the monitoring request name.
func (u SocketUpdate) String() string {
	switch u {
	case WatchRead:
		return "read"
	case WatchWrite:
		return "write"
	case WatchReadWrite:
		return "read|write"
	case WatchRemove:
		return "remove"
	}
	return "unknown"
}

// SocketFunc receives socket monitoring changes. It is invoked only from
// within Add, Remove, Drive, DriveTimeout or Close on the calling
// goroutine, never concurrently.
type SocketFunc func(fd int, what SocketUpdate)

// TimerFunc receives wakeup scheduling changes. d < 0 cancels any pending
// wakeup, d == 0 requests DriveTimeout at the next scheduling opportunity,
// d > 0 requests DriveTimeout after d. Each call supersedes the previous
// one; at most one wakeup is ever pending.
type TimerFunc func(d time.Duration)

// Message reports one finished transfer. Err is nil when Code is CodeOK
// and carries phase detail otherwise.
type Message struct {
	Request *Request
	Code    Code
	Err     error
}

// Engine coordinates any number of concurrent transfers over a shared
// socket set. Implementations are not safe for concurrent use; every
// method must be called from the same goroutine (the reactor loop).
type Engine interface {
	// Bind registers the driver callbacks. Exactly one bind is allowed for
	// the engine's lifetime; a second call fails with ErrEngineBound.
	Bind(onSocket SocketFunc, onTimer TimerFunc) error

	// Add starts managing a transfer. Validation failures (scheme, URL
	// shape) are reported immediately as a Code error and the request is
	// not retained. On success the engine schedules a kickoff wakeup.
	Add(req *Request) error

	// Remove withdraws an in-flight transfer without completing it. The
	// engine closes its socket, emitting WatchRemove first. Removing an
	// unknown request is a no-op.
	Remove(req *Request) error

	// Drive notifies the engine of readiness on one of its sockets. The
	// call may emit socket and timer updates and may finish transfers.
	Drive(fd int, events EventMask) error

	// DriveTimeout notifies the engine that its requested wakeup is due.
	// Side effects are the same as Drive.
	DriveTimeout() error

	// Next pops the oldest unreported finished transfer, if any.
	Next() (Message, bool)

	// Close fails every in-flight transfer with CodeAborted and releases
	// all sockets. Finished messages remain drainable via Next.
	Close() error
}

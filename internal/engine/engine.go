// File: internal/engine/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine implements the transfer engine contract. All methods must run on
// one goroutine (the reactor loop in production); nothing here locks.
// Socket monitoring requests and wakeup scheduling flow out through the
// callbacks bound once at driver construction; completed transfers queue
// up behind Next in finish order.

package engine

import (
	"errors"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/pool"
)

// errWouldBlock marks a socket operation that found no kernel capacity.
var errWouldBlock = errors.New("operation would block")

type wakeKind int

const (
	wakeIdle wakeKind = iota
	wakeImmediate
	wakeDeadline
)

// Engine multiplexes concurrent HTTP transfers over externally-monitored
// nonblocking sockets.
type Engine struct {
	logger   *log.Logger
	readSize int
	readBuf  *pool.BytePool

	bound    bool
	onSocket api.SocketFunc
	onTimer  api.TimerFunc

	xfers    map[*api.Request]*xfer
	byFD     map[int]*xfer
	startq   []*xfer
	finished *queue.Queue

	wakeKind wakeKind
	wakeWhen time.Time
	closed   bool
}

var _ api.Engine = (*Engine)(nil)

// New creates an idle engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   log.Default(),
		readSize: DefaultReadBufferSize,
		xfers:    make(map[*api.Request]*xfer),
		byFD:     make(map[int]*xfer),
		finished: queue.New(),
	}
	for _, o := range opts {
		o(e)
	}
	e.readBuf = pool.NewBytePool(e.readSize)
	return e
}

// Bind implements api.Engine.
func (e *Engine) Bind(onSocket api.SocketFunc, onTimer api.TimerFunc) error {
	if e.bound {
		return api.ErrEngineBound
	}
	if onSocket == nil || onTimer == nil {
		return api.Errorf(api.CodeBadValue, "nil engine callback")
	}
	e.bound = true
	e.onSocket = onSocket
	e.onTimer = onTimer
	return nil
}

// Add implements api.Engine. Validation failures reject the request
// without retaining it; accepted transfers start on the next wakeup.
func (e *Engine) Add(req *api.Request) error {
	if e.closed {
		return api.ErrEngineClosed
	}
	if req == nil {
		return api.Errorf(api.CodeBadValue, "nil request")
	}
	if _, dup := e.xfers[req]; dup {
		return api.Wrap(api.CodeBadValue, api.ErrAlreadySubmitted, "request already managed")
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return api.Wrap(api.CodeBadURL, err, "parse url")
	}
	if u.Scheme != "http" {
		return api.Errorf(api.CodeUnsupportedProtocol, "unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return api.Errorf(api.CodeBadURL, "url %q has no host", req.URL)
	}
	method := req.Method
	if method == "" {
		method = "GET"
	}

	now := time.Now()
	req.Info = api.ResponseInfo{
		Start:         now,
		EffectiveURL:  req.URL,
		ContentLength: -1,
	}
	x := &xfer{
		req:    req,
		sink:   req.Sink,
		method: method,
		body:   req.Body,
		state:  stateNew,
		u:      u,
		fd:     -1,
	}
	if x.sink == nil {
		x.sink = io.Discard
	}
	if t := req.Options.Timeout; t > 0 {
		x.overallDeadline = now.Add(t)
	}
	e.xfers[req] = x
	e.startq = append(e.startq, x)
	e.reschedule(now)
	return nil
}

// Remove implements api.Engine. The transfer is dropped without a
// finished message; removing an unknown request is a no-op.
func (e *Engine) Remove(req *api.Request) error {
	if e.closed {
		return api.ErrEngineClosed
	}
	x := e.xfers[req]
	if x == nil {
		return nil
	}
	e.detach(x)
	e.reschedule(time.Now())
	return nil
}

// Drive implements api.Engine. Readiness on a foreign or stale descriptor
// is ignored.
func (e *Engine) Drive(fd int, events api.EventMask) error {
	if e.closed {
		return api.ErrEngineClosed
	}
	x := e.byFD[fd]
	if x == nil {
		return nil
	}
	now := time.Now()
	if events.Failed() && !events.Readable() && !events.Writable() {
		e.socketFailed(x, now)
	} else {
		switch x.state {
		case stateConnecting:
			e.checkConnect(x, now)
		case stateSending:
			e.flushSend(x)
		case stateReceiving:
			e.pumpRecv(x)
		}
	}
	e.reschedule(now)
	return nil
}

// socketFailed resolves pure error readiness: a real socket error fails
// the transfer with its phase code, a healthy socket in the receive phase
// is drained to EOF, and anything else is an injected monitoring failure.
func (e *Engine) socketFailed(x *xfer, now time.Time) {
	if err := sockSoError(x.fd); err != nil {
		if x.state == stateConnecting {
			// SO_ERROR reads destructively, so resolve the failed probe
			// here instead of re-checking: the next address may work.
			x.lastDial = err
			e.trace(x, "connect failed: %v", err)
			e.closeSocket(x)
			e.connectNext(x, now)
			return
		}
		e.fail(x, api.Wrap(e.phaseCode(x), err, "socket error"))
		return
	}
	if x.state == stateReceiving {
		e.pumpRecv(x)
		return
	}
	e.fail(x, api.Errorf(api.CodeInternal, "socket monitoring failed"))
}

func (e *Engine) phaseCode(x *xfer) api.Code {
	switch x.state {
	case stateConnecting:
		return api.CodeConnect
	case stateSending:
		return api.CodeSend
	case stateReceiving:
		return api.CodeRecv
	}
	return api.CodeInternal
}

// DriveTimeout implements api.Engine: start queued transfers, expire
// overdue deadlines, then re-arm the wakeup.
func (e *Engine) DriveTimeout() error {
	if e.closed {
		return api.ErrEngineClosed
	}
	// The pending wakeup is consumed; reschedule re-arms from scratch.
	e.wakeKind = wakeIdle
	now := time.Now()
	e.startQueued(now)
	e.expireDeadlines(now)
	e.reschedule(now)
	return nil
}

func (e *Engine) startQueued(now time.Time) {
	for len(e.startq) > 0 {
		q := e.startq
		e.startq = nil
		for _, x := range q {
			if x.state == stateNew {
				e.startTransfer(x, now)
			}
		}
	}
}

func (e *Engine) expireDeadlines(now time.Time) {
	var overdue []*xfer
	for _, x := range e.xfers {
		if d := x.nextDeadline(); !d.IsZero() && !now.Before(d) {
			overdue = append(overdue, x)
		}
	}
	for _, x := range overdue {
		if x.state == stateConnecting && (x.overallDeadline.IsZero() || now.Before(x.overallDeadline)) {
			e.fail(x, api.Errorf(api.CodeTimeout, "connect exceeded %v", x.connectTimeout()))
			continue
		}
		e.fail(x, api.Errorf(api.CodeTimeout, "transfer exceeded %v", x.req.Options.Timeout))
	}
}

// Next implements api.Engine.
func (e *Engine) Next() (api.Message, bool) {
	if e.finished.Length() == 0 {
		return api.Message{}, false
	}
	return e.finished.Remove().(api.Message), true
}

// Close implements api.Engine. In-flight transfers fail CodeAborted and
// their messages stay drainable.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	for _, x := range e.managed() {
		e.complete(x, api.CodeAborted, api.Wrap(api.CodeAborted, api.ErrEngineClosed, "engine closed"))
	}
	if e.onTimer != nil && e.wakeKind != wakeIdle {
		e.onTimer(-1)
	}
	e.closed = true
	e.startq = nil
	return nil
}

func (e *Engine) managed() []*xfer {
	out := make([]*xfer, 0, len(e.xfers))
	for _, x := range e.xfers {
		out = append(out, x)
	}
	return out
}

// setInterest emits a socket monitoring change when the wanted set
// actually changed.
func (e *Engine) setInterest(x *xfer, want api.SocketUpdate) {
	if x.interest == want {
		return
	}
	x.interest = want
	if e.onSocket != nil {
		e.onSocket(x.fd, want)
	}
}

// closeSocket withdraws monitoring, then closes the descriptor. The
// WatchRemove always precedes the close so the bridge never watches a
// dead descriptor.
func (e *Engine) closeSocket(x *xfer) {
	if x.fd < 0 {
		return
	}
	e.setInterest(x, api.WatchRemove)
	delete(e.byFD, x.fd)
	sockClose(x.fd)
	x.fd = -1
	x.interest = interestNone
}

// detach forgets a transfer without queueing a message.
func (e *Engine) detach(x *xfer) {
	e.closeSocket(x)
	delete(e.xfers, x.req)
	for i, q := range e.startq {
		if q == x {
			e.startq = append(e.startq[:i], e.startq[i+1:]...)
			break
		}
	}
	x.state = stateDone
}

// fail finishes a transfer with the code carried by err.
func (e *Engine) fail(x *xfer, err error) {
	e.trace(x, "failed: %v", err)
	e.complete(x, api.CodeOf(err), err)
}

// complete detaches the transfer, stamps its result block and queues the
// finished message.
func (e *Engine) complete(x *xfer, code api.Code, err error) {
	e.detach(x)
	info := &x.req.Info
	info.Completed = true
	info.Done = time.Now()
	if err == nil && code != api.CodeOK {
		err = code
	}
	e.finished.Add(api.Message{Request: x.req, Code: code, Err: err})
}

// reschedule re-arms the wakeup callback: immediate while work is queued,
// the nearest deadline otherwise, cancelled when nothing is pending.
func (e *Engine) reschedule(now time.Time) {
	if e.onTimer == nil || e.closed {
		return
	}
	if len(e.startq) > 0 {
		if e.wakeKind != wakeImmediate {
			e.wakeKind = wakeImmediate
			e.onTimer(0)
		}
		return
	}
	var nearest time.Time
	for _, x := range e.xfers {
		if d := x.nextDeadline(); !d.IsZero() && (nearest.IsZero() || d.Before(nearest)) {
			nearest = d
		}
	}
	if nearest.IsZero() {
		if e.wakeKind != wakeIdle {
			e.wakeKind = wakeIdle
			e.onTimer(-1)
		}
		return
	}
	if e.wakeKind == wakeDeadline && e.wakeWhen.Equal(nearest) {
		return
	}
	d := nearest.Sub(now)
	if d <= 0 {
		if e.wakeKind != wakeImmediate {
			e.wakeKind = wakeImmediate
			e.onTimer(0)
		}
		return
	}
	e.wakeKind = wakeDeadline
	e.wakeWhen = nearest
	e.onTimer(d)
}

// File: fake/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine is a scriptable api.Engine. Tests emulate any native callback
// sequence through RequestWatch, RequestTimer and Finish, and observe the
// driver's side through the recorded call fields.

package fake

import (
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// DriveCall records one Drive invocation.
type DriveCall struct {
	FD     int
	Events api.EventMask
}

// Engine is the scriptable engine double.
type Engine struct {
	Bound         bool
	Added         []*api.Request
	Removed       []*api.Request
	Drives        []DriveCall
	TimeoutDrives int
	Closed        int

	// AddErr, when set, fails the next Add call and is then cleared.
	AddErr error
	// DriveHook runs inside Drive, so tests can emit callbacks or finish
	// transfers from within a drive, as the real engine does.
	DriveHook func(fd int, events api.EventMask)
	// TimeoutHook runs inside DriveTimeout.
	TimeoutHook func()

	onSocket api.SocketFunc
	onTimer  api.TimerFunc
	queue    []api.Message
}

var _ api.Engine = (*Engine)(nil)

// NewEngine returns an unbound scriptable engine.
func NewEngine() *Engine { return &Engine{} }

// Bind implements api.Engine.
func (e *Engine) Bind(onSocket api.SocketFunc, onTimer api.TimerFunc) error {
	if e.Bound {
		return api.ErrEngineBound
	}
	e.Bound = true
	e.onSocket = onSocket
	e.onTimer = onTimer
	return nil
}

// Add implements api.Engine.
func (e *Engine) Add(req *api.Request) error {
	if e.AddErr != nil {
		err := e.AddErr
		e.AddErr = nil
		return err
	}
	e.Added = append(e.Added, req)
	return nil
}

// Remove implements api.Engine.
func (e *Engine) Remove(req *api.Request) error {
	e.Removed = append(e.Removed, req)
	return nil
}

// Drive implements api.Engine.
func (e *Engine) Drive(fd int, events api.EventMask) error {
	e.Drives = append(e.Drives, DriveCall{FD: fd, Events: events})
	if e.DriveHook != nil {
		e.DriveHook(fd, events)
	}
	return nil
}

// DriveTimeout implements api.Engine.
func (e *Engine) DriveTimeout() error {
	e.TimeoutDrives++
	if e.TimeoutHook != nil {
		e.TimeoutHook()
	}
	return nil
}

// Next implements api.Engine.
func (e *Engine) Next() (api.Message, bool) {
	if len(e.queue) == 0 {
		return api.Message{}, false
	}
	m := e.queue[0]
	e.queue = e.queue[1:]
	return m, true
}

// Close implements api.Engine.
func (e *Engine) Close() error {
	e.Closed++
	return nil
}

// RequestWatch emits a socket monitoring change to the bound driver.
func (e *Engine) RequestWatch(fd int, what api.SocketUpdate) {
	if e.onSocket != nil {
		e.onSocket(fd, what)
	}
}

// RequestTimer emits a wakeup scheduling change to the bound driver.
func (e *Engine) RequestTimer(d time.Duration) {
	if e.onTimer != nil {
		e.onTimer(d)
	}
}

// Finish marks req completed and queues its finished message, as the real
// engine does at the end of a transfer. The message surfaces on the next
// drain the driver runs.
func (e *Engine) Finish(req *api.Request, code api.Code, err error) {
	if req != nil && !req.Info.Completed {
		req.Info.Completed = true
		req.Info.Done = time.Now()
		if req.Info.Start.IsZero() {
			req.Info.Start = req.Info.Done
		}
	}
	if err == nil && code != api.CodeOK {
		err = code
	}
	e.queue = append(e.queue, api.Message{Request: req, Code: code, Err: err})
}

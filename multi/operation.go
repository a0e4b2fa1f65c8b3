// File: multi/operation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package multi

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// Operation is the continuation created for one submitted transfer. It is
// fulfilled exactly once: by the engine finishing the transfer, by Cancel,
// or by the driver closing. Code and Err are valid once Done is closed.
type Operation struct {
	driver *Driver
	req    *api.Request

	done chan struct{}
	once sync.Once
	code api.Code
	err  error
}

var _ api.Cancelable = (*Operation)(nil)

// Done is closed when the operation resolves.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Code returns the transfer result code. Valid only after Done is closed.
func (o *Operation) Code() api.Code { return o.code }

// Err returns the terminal error, nil on success. Valid only after Done
// is closed.
func (o *Operation) Err() error { return o.err }

// Request returns the engine-facing request this operation tracks. Its
// result block is safe to read once Done is closed.
func (o *Operation) Request() *api.Request { return o.req }

// Cancel withdraws the transfer: it is removed from the engine, its
// completion entry erased, and the operation resolves with CodeAborted.
// Cancelling a resolved operation is a no-op returning nil.
func (o *Operation) Cancel() error {
	select {
	case <-o.done:
		return nil
	default:
	}
	return o.driver.reactor.Post(func() { o.driver.cancel(o) })
}

// Wait blocks until the operation resolves or ctx is done. Context
// cancellation cancels the transfer and waits for the abort to land, so
// the handle is always unlocked when Wait returns.
func (o *Operation) Wait(ctx context.Context) (api.Code, error) {
	select {
	case <-o.done:
		return o.code, o.err
	case <-ctx.Done():
		if err := o.Cancel(); err != nil {
			// Loop is gone; resolve locally so the caller never hangs.
			o.fulfill(api.CodeAborted, api.Wrap(api.CodeAborted, ctx.Err(), "context cancelled"))
		}
		<-o.done
		return o.code, o.err
	}
}

// fulfill resolves the operation. The completed flag on the request's
// result block unlocks the originating handle even on abort paths where
// the engine never touched the transfer.
func (o *Operation) fulfill(code api.Code, err error) {
	o.once.Do(func() {
		o.code = code
		o.err = err
		if o.req != nil && !o.req.Info.Completed {
			o.req.Info.Completed = true
			if o.req.Info.Done.IsZero() {
				o.req.Info.Done = time.Now()
			}
			if o.req.Info.Start.IsZero() {
				o.req.Info.Start = o.req.Info.Done
			}
		}
		close(o.done)
	})
}

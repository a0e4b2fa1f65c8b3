// File: transfer/perform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transfer

import (
	"context"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/internal/engine"
	"github.com/momentics/hioload-fetch/multi"
	"github.com/momentics/hioload-fetch/reactor"
)

// Perform executes the handle synchronously: a private reactor loop,
// engine and driver are wired up, the handle is submitted, and the call
// blocks until the transfer resolves or ctx is done. The temporary stack
// is torn down before Perform returns.
//
// Perform must not be called from a reactor callback; it starts and
// joins its own loop goroutine. Callers multiplexing many transfers
// should share a driver (or the client facade) instead of paying the
// per-call setup.
func (h *Handle) Perform(ctx context.Context) (api.Code, error) {
	if !h.Valid() {
		return api.CodeBadValue, api.ErrHandleInvalid
	}
	loop, err := reactor.NewLoop()
	if err != nil {
		return api.CodeInternal, api.Wrap(api.CodeInternal, err, "start reactor")
	}
	drv, err := multi.New(loop, engine.New())
	if err != nil {
		loop.Close()
		return api.CodeInternal, api.Wrap(api.CodeInternal, err, "bind driver")
	}
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run() }()
	defer func() {
		drv.Close()
		loop.Close()
		<-runErr
	}()

	op, err := drv.Submit(h)
	if err != nil {
		return api.CodeOf(err), err
	}
	return op.Wait(ctx)
}

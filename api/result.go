// Package api
// Author: momentics@gmail.com
//
// Completion primitives shared by the driver and the client facade.

package api

// Result pairs a completed transfer payload with its terminal error, used
// by batch client calls where individual transfers fail independently.
type Result[T any] struct {
	Value T
	Err   error
}

// Cancelable is a pending transfer operation that may be aborted before
// the engine reports it finished. The multi driver's Operation satisfies
// this; Done closes exactly once, when the continuation is fulfilled.
type Cancelable interface {
	// Cancel aborts the operation; completed operations return nil.
	Cancel() error
	// Done signals completion or cancellation.
	Done() <-chan struct{}
	// Err returns the terminal error, nil on success, only valid after
	// Done is closed.
	Err() error
}

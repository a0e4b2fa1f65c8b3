// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies orderly teardown across library components.
// The client facade and the reactor loop implement it; Shutdown drains
// pending work, releases resources and is safe to call more than once.
type GracefulShutdown interface {
	// Shutdown performs an orderly stop of all internal services and
	// releases their resources. Returns an error on failure.
	Shutdown() error
}

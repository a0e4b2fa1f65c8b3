//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub backend for platforms without an epoll implementation.

package reactor

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-fetch/api"
)

func newBackend() (backend, error) {
	return nil, fmt.Errorf("reactor: %s: %w", runtime.GOOS, api.ErrNotSupported)
}

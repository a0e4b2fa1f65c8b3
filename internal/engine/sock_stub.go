//go:build !linux
// +build !linux

// File: internal/engine/sock_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket shims for platforms without the nonblocking implementation. The
// engine still constructs and validates on these platforms; transfers fail
// at connect time.

package engine

import (
	"net"

	"github.com/momentics/hioload-fetch/api"
)

func sockConnect(ip net.IP, port int) (int, bool, error) {
	return -1, false, api.ErrNotSupported
}

func sockSoError(fd int) error { return api.ErrNotSupported }

func sockRead(fd int, buf []byte) (int, error) { return 0, api.ErrNotSupported }

func sockWrite(fd int, buf []byte) (int, error) { return 0, api.ErrNotSupported }

func sockClose(fd int) {}

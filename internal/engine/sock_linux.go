//go:build linux
// +build linux

// File: internal/engine/sock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Nonblocking TCP socket shims. Every descriptor is created with
// SOCK_NONBLOCK|SOCK_CLOEXEC so a slow peer can never stall the loop.

package engine

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// sockConnect creates a nonblocking socket and starts connecting it to
// ip:port. connected reports an immediately established connection;
// otherwise the connect is in progress and write readiness signals the
// outcome.
func sockConnect(ip net.IP, port int) (fd int, connected bool, err error) {
	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		a := &unix.SockaddrInet4{Port: port}
		copy(a.Addr[:], ip4)
		sa = a
	} else if ip16 := ip.To16(); ip16 != nil {
		family = unix.AF_INET6
		a := &unix.SockaddrInet6{Port: port}
		copy(a.Addr[:], ip16)
		sa = a
	} else {
		return -1, false, fmt.Errorf("unusable address %v", ip)
	}

	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, false, fmt.Errorf("socket: %w", err)
	}
	// Request bytes go out in one burst; do not wait for coalescing.
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	switch err = unix.Connect(fd, sa); err {
	case nil:
		return fd, true, nil
	case unix.EINPROGRESS:
		return fd, false, nil
	default:
		unix.Close(fd)
		return -1, false, fmt.Errorf("connect: %w", err)
	}
}

// sockSoError reads and clears the pending socket error, nil when none.
func sockSoError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// sockRead reads into buf. Returns errWouldBlock when the socket has no
// data and io.EOF on orderly shutdown.
func sockRead(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, errWouldBlock
		default:
			return 0, err
		}
	}
}

// sockWrite writes buf. Returns errWouldBlock when the send buffer is
// full before any byte was accepted.
func sockWrite(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Write(fd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, errWouldBlock
		default:
			return 0, err
		}
	}
}

func sockClose(fd int) {
	_ = unix.Close(fd)
}

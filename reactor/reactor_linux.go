//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) backend. Registrations are level-triggered; the cross-
// goroutine wakeup rides an eventfd registered alongside the watched
// descriptors.

package reactor

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fetch/api"
)

// epollBackend is the Linux readiness backend.
type epollBackend struct {
	epfd   int
	wakeFD int
	raw    []unix.EpollEvent
}

var _ backend = (*epollBackend)(nil)

func newBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		unix.Close(wakeFD)
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: register wakeup: %w", err)
	}
	return &epollBackend{
		epfd:   epfd,
		wakeFD: wakeFD,
		raw:    make([]unix.EpollEvent, maxEvents),
	}, nil
}

func epollBits(read, write bool) uint32 {
	var bits uint32
	if read {
		bits |= unix.EPOLLIN
	}
	if write {
		bits |= unix.EPOLLOUT
	}
	return bits
}

func (b *epollBackend) add(fd int, read, write bool) error {
	ev := unix.EpollEvent{Events: epollBits(read, write), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	return nil
}

func (b *epollBackend) mod(fd int, read, write bool) error {
	ev := unix.EpollEvent{Events: epollBits(read, write), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod: %w", err)
	}
	return nil
}

func (b *epollBackend) del(fd int) error {
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del: %w", err)
	}
	return nil
}

func (b *epollBackend) wait(evs []backendEvent, timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		// Round up so a short deadline does not spin at zero.
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(b.epfd, b.raw, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}
	out := 0
	for i := 0; i < n && out < len(evs); i++ {
		raw := b.raw[i]
		fd := int(raw.Fd)
		if fd == b.wakeFD {
			b.drainWake()
			continue
		}
		evs[out] = backendEvent{fd: fd, mask: translateEpoll(raw.Events)}
		out++
	}
	return out, nil
}

func translateEpoll(events uint32) (mask api.EventMask) {
	if events&unix.EPOLLIN != 0 {
		mask |= api.EventRead
	}
	if events&unix.EPOLLOUT != 0 {
		mask |= api.EventWrite
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= api.EventError
	}
	return mask
}

// drainWake resets the eventfd counter so level-triggered polling stops
// reporting it.
func (b *epollBackend) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(b.wakeFD, buf[:]); err != nil {
			return
		}
	}
}

func (b *epollBackend) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(b.wakeFD, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// A saturated counter is already a pending wakeup.
			return nil
		case unix.EINTR:
			continue
		default:
			return fmt.Errorf("eventfd write: %w", err)
		}
	}
}

func (b *epollBackend) close() error {
	werr := unix.Close(b.wakeFD)
	eerr := unix.Close(b.epfd)
	if eerr != nil {
		return fmt.Errorf("close epoll: %w", eerr)
	}
	if werr != nil {
		return fmt.Errorf("close wakeup: %w", werr)
	}
	return nil
}

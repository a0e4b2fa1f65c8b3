// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the host event loop: a single-goroutine
// readiness reactor with level-triggered descriptor watches, one-shot
// timers and a cross-goroutine post queue, backed by epoll on Linux.
package reactor

// File: internal/engine/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import "log"

// DefaultReadBufferSize is the pooled socket read buffer size.
const DefaultReadBufferSize = 32 * 1024

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostic logger used for verbose transfer traces.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithReadBufferSize sets the pooled read buffer size in bytes.
func WithReadBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.readSize = n
		}
	}
}

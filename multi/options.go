// File: multi/options.go
// Package multi defines functional options for the Driver.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package multi

import "log"

// Option customizes driver initialization.
type Option func(*Driver)

// WithLogger routes driver diagnostics through l instead of the default
// logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxConcurrent caps the number of transfers handed to the engine at
// once; excess submissions queue FIFO until capacity frees up. Zero means
// unlimited.
func WithMaxConcurrent(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxConc = n
		}
	}
}

// File: client/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"log"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// injected carries caller-supplied collaborators through New. Kept off
// the Client so the struct never holds half-constructed state.
type injected struct {
	reactor api.Reactor
	engine  api.Engine
}

// Option customizes client construction.
type Option func(*Client, *injected)

// WithReactor runs the client on an externally-owned loop. The caller
// drives it and keeps it alive for the client's lifetime; Close will not
// stop it.
func WithReactor(r api.Reactor) Option {
	return func(c *Client, inj *injected) {
		inj.reactor = r
	}
}

// WithEngine substitutes the transfer engine, e.g. a scripted fake.
func WithEngine(e api.Engine) Option {
	return func(c *Client, inj *injected) {
		inj.engine = e
	}
}

// WithLogger routes client, driver and loop diagnostics through l.
func WithLogger(l *log.Logger) Option {
	return func(c *Client, inj *injected) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent applied to handles that set none.
func WithUserAgent(ua string) Option {
	return func(c *Client, inj *injected) {
		c.cfg.UserAgent = ua
	}
}

// WithDefaultTimeout bounds every transfer that carries no timeout of
// its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client, inj *injected) {
		if d > 0 {
			c.cfg.DefaultTimeout = d
		}
	}
}

// WithConnectTimeout bounds each connect attempt for transfers that set
// no dial budget.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client, inj *injected) {
		if d > 0 {
			c.cfg.ConnectTimeout = d
		}
	}
}

// WithFollowRedirects controls the client-wide redirect default.
func WithFollowRedirects(follow bool) Option {
	return func(c *Client, inj *injected) {
		c.cfg.FollowRedirect = follow
	}
}

// WithMaxRedirects caps redirect chains for handles that set no cap.
func WithMaxRedirects(n int) Option {
	return func(c *Client, inj *injected) {
		if n > 0 {
			c.cfg.MaxRedirects = n
		}
	}
}

// WithAcceptEncoding controls the client-wide compression default.
func WithAcceptEncoding(on bool) Option {
	return func(c *Client, inj *injected) {
		c.cfg.AcceptEncoding = on
	}
}

// WithMaxConcurrent caps transfers in flight at once; excess submissions
// queue FIFO. Zero means unlimited.
func WithMaxConcurrent(n int) Option {
	return func(c *Client, inj *injected) {
		if n > 0 {
			c.cfg.MaxConcurrent = n
		}
	}
}

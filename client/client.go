// File: client/client.go
// Package client provides the high-level facade over the reactor loop,
// transfer engine and multi driver.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Client owns the whole stack a typical application needs: it starts a
// reactor loop on an internal goroutine, binds an HTTP engine to a multi
// driver, and exposes blocking convenience calls (Get, Post, Download)
// next to the async Submit passthrough. Close tears the stack down in
// dependency order and joins the loop goroutine; it is idempotent.

package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/internal/engine"
	"github.com/momentics/hioload-fetch/multi"
	"github.com/momentics/hioload-fetch/reactor"
	"github.com/momentics/hioload-fetch/transfer"
)

// Config holds the client-wide transfer defaults. Per-handle settings
// always win; these apply where the handle left the zero value.
type Config struct {
	UserAgent      string        // User-Agent for handles that set none
	DefaultTimeout time.Duration // whole-transfer budget, 0 = unlimited
	ConnectTimeout time.Duration // dial budget, 0 = api.DefaultConnectTimeout
	FollowRedirect bool          // chase 3xx responses on every transfer
	MaxRedirects   int           // redirect cap, 0 = api.DefaultMaxRedirects
	AcceptEncoding bool          // advertise gzip/deflate on every transfer
	MaxConcurrent  int           // driver admission cap, 0 = unlimited
}

// DefaultConfig returns the defaults a browserish fetch tool wants:
// redirects followed, compression negotiated, no global deadline.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:      api.DefaultUserAgent,
		FollowRedirect: true,
		AcceptEncoding: true,
	}
}

// Client is the ready-to-use transfer stack.
type Client struct {
	cfg    *Config
	logger *log.Logger

	loop    api.Reactor
	ownLoop *reactor.Loop // set when the client started its own loop
	driver  *multi.Driver

	runErr    chan error
	closeOnce sync.Once
	closeErr  error
}

var _ api.GracefulShutdown = (*Client)(nil)

// New builds and starts a client. Unless WithReactor supplies an
// externally-driven loop, a private reactor goroutine is started here
// and joined by Close.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		cfg:    DefaultConfig(),
		logger: log.Default(),
		runErr: make(chan error, 1),
	}
	var inj injected
	for _, o := range opts {
		o(c, &inj)
	}

	eng := inj.engine
	if eng == nil {
		eng = engine.New(engine.WithLogger(c.logger))
	}
	c.loop = inj.reactor
	if c.loop == nil {
		lp, err := reactor.NewLoop(reactor.WithLogger(c.logger))
		if err != nil {
			return nil, fmt.Errorf("client: start reactor: %w", err)
		}
		c.ownLoop = lp
		c.loop = lp
	}

	drv, err := multi.New(c.loop, eng,
		multi.WithLogger(c.logger),
		multi.WithMaxConcurrent(c.cfg.MaxConcurrent),
	)
	if err != nil {
		if c.ownLoop != nil {
			c.ownLoop.Close()
		}
		return nil, fmt.Errorf("client: bind driver: %w", err)
	}
	c.driver = drv

	if c.ownLoop != nil {
		go func() { c.runErr <- c.ownLoop.Run() }()
	}
	return c, nil
}

// prepare fills client-wide defaults into a handle's request. Bool
// defaults only ever enable a feature; the zero value cannot distinguish
// "off" from "unset".
func (c *Client) prepare(h *transfer.Handle) {
	req := h.Request()
	if req == nil {
		return
	}
	o := &req.Options
	if o.UserAgent == "" {
		o.UserAgent = c.cfg.UserAgent
	}
	if o.Timeout == 0 {
		o.Timeout = c.cfg.DefaultTimeout
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = c.cfg.ConnectTimeout
	}
	if o.MaxRedirects == 0 {
		o.MaxRedirects = c.cfg.MaxRedirects
	}
	o.FollowRedirect = o.FollowRedirect || c.cfg.FollowRedirect
	o.AcceptEncoding = o.AcceptEncoding || c.cfg.AcceptEncoding
}

// Submit hands the handle to the driver without waiting. The handle is
// locked until the returned operation resolves.
func (c *Client) Submit(h *transfer.Handle) (*multi.Operation, error) {
	if !h.Valid() {
		return nil, api.ErrHandleInvalid
	}
	c.prepare(h)
	return c.driver.Submit(h)
}

// Do submits the handle and blocks until it resolves or ctx is done.
func (c *Client) Do(ctx context.Context, h *transfer.Handle) (api.Code, error) {
	op, err := c.Submit(h)
	if err != nil {
		return api.CodeOf(err), err
	}
	return op.Wait(ctx)
}

// DoAll submits every handle at once and blocks until each has resolved
// or ctx is done. Results line up with the input slice; transfers fail
// independently.
func (c *Client) DoAll(ctx context.Context, handles ...*transfer.Handle) []api.Result[api.Code] {
	ops := make([]*multi.Operation, len(handles))
	results := make([]api.Result[api.Code], len(handles))
	for i, h := range handles {
		op, err := c.Submit(h)
		if err != nil {
			results[i] = api.Result[api.Code]{Value: api.CodeOf(err), Err: err}
			continue
		}
		ops[i] = op
	}
	for i, op := range ops {
		if op == nil {
			continue
		}
		code, err := op.Wait(ctx)
		results[i] = api.Result[api.Code]{Value: code, Err: err}
	}
	return results
}

// Get fetches url and returns the completed handle for body and info
// access. The caller owns the handle and should Close it. A non-2xx
// status is not an error; inspect StatusCode.
func (c *Client) Get(ctx context.Context, url string) (*transfer.Handle, error) {
	h := transfer.New()
	h.SetURL(url)
	if _, err := c.Do(ctx, h); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Post sends body with the given Content-Type and returns the completed
// handle.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) (*transfer.Handle, error) {
	h := transfer.New()
	h.SetURL(url)
	h.SetMethod("POST")
	h.SetBody(body)
	if contentType != "" {
		h.AddHeader("Content-Type", contentType)
	}
	if _, err := c.Do(ctx, h); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// PostForm sends the pairs as an application/x-www-form-urlencoded body,
// order preserved, values passed through unescaped.
func (c *Client) PostForm(ctx context.Context, url string, pairs []transfer.Pair) (*transfer.Handle, error) {
	h := transfer.New()
	h.SetURL(url)
	if err := h.SetForm(pairs); err != nil {
		h.Close()
		return nil, err
	}
	if _, err := c.Do(ctx, h); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Download streams the response body of url into w and returns the byte
// count delivered. On failure the count covers whatever arrived before
// the error.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	if w == nil {
		return 0, api.Errorf(api.CodeBadValue, "nil download writer")
	}
	h := transfer.New()
	defer h.Close()
	h.SetURL(url)
	h.SinkWriter(w)
	_, doErr := c.Do(ctx, h)
	n, infoErr := h.BytesReceived()
	if doErr != nil {
		return n, doErr
	}
	if infoErr != nil {
		return 0, infoErr
	}
	return n, nil
}

// Close shuts the stack down: driver first (aborting in-flight
// transfers), then the loop, then the loop goroutine join. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.driver.Close()
		if c.ownLoop == nil {
			return
		}
		c.closeErr = c.ownLoop.Close()
		if err := <-c.runErr; err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// Shutdown implements api.GracefulShutdown.
func (c *Client) Shutdown() error {
	return c.Close()
}

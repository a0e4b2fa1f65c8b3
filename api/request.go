// File: api/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request is the flattened, engine-facing description of one transfer.
// The transfer package builds these through its Handle wrapper; the multi
// driver keys its completion registry on the *Request pointer identity.

package api

import (
	"io"
	"time"
)

// RequestOptions carries the per-transfer knobs the engine honors.
type RequestOptions struct {
	ConnectTimeout time.Duration // dial phase budget, 0 = DefaultConnectTimeout
	Timeout        time.Duration // whole-transfer budget, 0 = unlimited
	FollowRedirect bool          // chase 3xx Location responses
	MaxRedirects   int           // redirect cap when following, 0 = DefaultMaxRedirects
	UserAgent      string        // User-Agent header value, "" = DefaultUserAgent
	AcceptEncoding bool          // advertise and decode gzip/deflate bodies
	Verbose        bool          // per-phase trace logging through the driver logger
}

// Defaults applied by engines when the corresponding option is zero.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxRedirects   = 16
	DefaultUserAgent      = "hioload-fetch/1.0"
)

// Request is one transfer in flight: immutable configuration filled in by
// the caller before submission, plus a result block owned by the engine.
//
// Sink is borrowed storage. It must stay valid until the transfer
// completes or is cancelled; violating that is undefined behavior, matching
// the buffer contract of the handle wrapper.
type Request struct {
	Method  string
	URL     string
	Header  []string // pre-rendered "Key: Value" lines, no terminator
	Body    []byte   // owned by the request, POST payload when non-nil
	Sink    io.Writer
	Options RequestOptions

	Info ResponseInfo // written by the engine, valid once Info.Completed
}

// ResponseInfo is the engine-populated result block of a transfer.
type ResponseInfo struct {
	Completed     bool
	StatusCode    int
	Proto         string
	Status        string
	Headers       []string // response header lines in wire order
	ContentType   string
	ContentLength int64 // advertised length, -1 when unknown
	BytesReceived int64 // decoded body bytes delivered to the sink
	EffectiveURL  string
	Redirects     int
	Start         time.Time
	Done          time.Time
}

// TotalTime returns the wall time between submission start and completion.
func (i ResponseInfo) TotalTime() time.Duration {
	if !i.Completed {
		return 0
	}
	return i.Done.Sub(i.Start)
}

// File: transfer/handle.go
// Package transfer implements the per-request configuration wrapper.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Handle owns one transfer's configuration and buffers: target URL,
// custom header list, request body, and the output sink the response body
// streams into. Handles are built up through setter calls, then either
// submitted to a multi.Driver for reactor-driven execution or executed
// synchronously through Perform. A Handle is not safe for concurrent use;
// mutate it only before submission or after its completion was observed.

package transfer

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// Pair is one key/value element of a form body or URL query. Values are
// joined verbatim: no percent-escaping is performed, callers pre-encode.
type Pair struct {
	Key   string
	Value string
}

// Handle wraps the engine-facing request with ownership and lifecycle
// rules. The zero value is not usable; construct with New.
type Handle struct {
	req       *api.Request // nil once Close has run
	buf       bytes.Buffer // default sink storage
	submitted bool
	explicit  bool // method was set explicitly, body setters keep it
}

// New returns an empty handle with the default internal output buffer and
// default options.
func New() *Handle {
	h := &Handle{req: &api.Request{Method: "GET"}}
	h.req.Sink = &h.buf
	return h
}

// Valid reports whether the handle still owns a request, i.e. Close has
// not been called. Operations on an invalid handle fail with
// api.ErrHandleInvalid.
func (h *Handle) Valid() bool {
	return h != nil && h.req != nil
}

// Close releases the handle's request, header list and buffers. The handle
// is invalid afterwards; Close is idempotent.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.req = nil
	h.buf.Reset()
	h.submitted = false
}

// Request exposes the raw engine-facing request. This is the native-handle
// escape hatch: callers submitting it directly to a driver bypass the
// lifecycle guards and own the consequences.
func (h *Handle) Request() *api.Request {
	if !h.Valid() {
		return nil
	}
	return h.req
}

// Acquire marks the handle submitted and hands out its request. It fails
// once the handle is in flight; completion (or Reset) unlocks it.
func (h *Handle) Acquire() (*api.Request, error) {
	if !h.Valid() {
		return nil, api.ErrHandleInvalid
	}
	if h.inFlight() {
		return nil, api.ErrAlreadySubmitted
	}
	h.submitted = true
	return h.req, nil
}

// Reset returns the handle to the configured-but-unsubmitted state with a
// fresh request identity, keeping the configuration. The previous request
// pointer is abandoned so a late completion message for it cannot be
// confused with the new submission.
func (h *Handle) Reset() error {
	if !h.Valid() {
		return api.ErrHandleInvalid
	}
	old := h.req
	h.req = &api.Request{
		Method:  old.Method,
		URL:     old.URL,
		Header:  append([]string(nil), old.Header...),
		Body:    append([]byte(nil), old.Body...),
		Sink:    old.Sink,
		Options: old.Options,
	}
	if len(old.Body) == 0 {
		h.req.Body = nil
	}
	if old.Sink == &h.buf {
		h.req.Sink = &h.buf
	}
	h.buf.Reset()
	h.submitted = false
	return nil
}

// Clone duplicates the configuration into an independent handle. In-flight
// and completion state is never copied; the clone starts unsubmitted with
// an empty default buffer. A borrowed sink is shared by reference.
func (h *Handle) Clone() *Handle {
	if !h.Valid() {
		return &Handle{}
	}
	c := &Handle{req: &api.Request{
		Method:  h.req.Method,
		URL:     h.req.URL,
		Header:  append([]string(nil), h.req.Header...),
		Body:    append([]byte(nil), h.req.Body...),
		Sink:    h.req.Sink,
		Options: h.req.Options,
	}}
	if len(h.req.Body) == 0 {
		c.req.Body = nil
	}
	c.explicit = h.explicit
	if h.req.Sink == &h.buf {
		c.req.Sink = &c.buf
	}
	return c
}

func (h *Handle) inFlight() bool {
	return h.submitted && !h.req.Info.Completed
}

// mutable guards every setter.
func (h *Handle) mutable() error {
	if !h.Valid() {
		return api.ErrHandleInvalid
	}
	if h.inFlight() {
		return api.ErrAlreadySubmitted
	}
	return nil
}

// SetURL sets the target URL.
func (h *Handle) SetURL(url string) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.URL = url
	return nil
}

// SetURLWithParams sets the target URL with a query string built from the
// pairs, joined k=v with '&' exactly as given.
func (h *Handle) SetURLWithParams(url string, params []Pair) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if len(params) == 0 {
		h.req.URL = url
		return nil
	}
	h.req.URL = url + "?" + joinPairs(params)
	return nil
}

// SetMethod sets the request method explicitly. Body setters no longer
// adjust the method afterwards.
func (h *Handle) SetMethod(method string) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if method == "" {
		return api.Errorf(api.CodeBadValue, "empty method")
	}
	h.req.Method = strings.ToUpper(method)
	h.explicit = true
	return nil
}

// AddHeader appends one custom header from a key/value pair.
func (h *Handle) AddHeader(key, value string) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Header = append(h.req.Header, key+": "+value)
	return nil
}

// AddHeaderLine appends one pre-rendered "Key: Value" header line. It
// reports false (and adds nothing) when the line has no colon.
func (h *Handle) AddHeaderLine(line string) bool {
	if h.mutable() != nil {
		return false
	}
	if !strings.Contains(line, ":") {
		return false
	}
	h.req.Header = append(h.req.Header, strings.TrimRight(line, "\r\n"))
	return true
}

// ClearHeaders drops the custom header list wholesale.
func (h *Handle) ClearHeaders() {
	if h.mutable() != nil {
		return
	}
	h.req.Header = nil
}

// SetBody installs data as the request body, taking ownership of the
// slice, and switches the method to POST unless one was set explicitly.
// SetBody(nil) removes the body and reverts an implicit POST back to GET.
func (h *Handle) SetBody(data []byte) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Body = data
	if h.explicit {
		return nil
	}
	if data == nil {
		h.req.Method = "GET"
	} else {
		h.req.Method = "POST"
	}
	return nil
}

// SetForm builds an application/x-www-form-urlencoded body from the pairs,
// preserving order and performing no escaping, and switches to POST.
func (h *Handle) SetForm(pairs []Pair) error {
	if err := h.SetBody([]byte(joinPairs(pairs))); err != nil {
		return err
	}
	return h.AddHeader("Content-Type", "application/x-www-form-urlencoded")
}

// SinkDefault routes the response body into the handle's internal buffer,
// readable through Body after completion. This is the initial state.
func (h *Handle) SinkDefault() error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.buf.Reset()
	h.req.Sink = &h.buf
	return nil
}

// SinkDiscard throws the response body away.
func (h *Handle) SinkDiscard() error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Sink = io.Discard
	return nil
}

// SinkWriter streams the response body into w as it decodes. The writer is
// borrowed and must stay usable until the transfer completes.
func (h *Handle) SinkWriter(w io.Writer) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if w == nil {
		return api.Errorf(api.CodeBadValue, "nil sink writer")
	}
	h.req.Sink = w
	return nil
}

// SinkBuffer appends the response body into the caller-owned buffer. The
// buffer is borrowed: it must outlive the transfer, and destroying it
// earlier is undefined behavior, not a recoverable error.
func (h *Handle) SinkBuffer(buf *bytes.Buffer) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if buf == nil {
		return api.Errorf(api.CodeBadValue, "nil sink buffer")
	}
	h.req.Sink = buf
	return nil
}

// Body returns the bytes collected by the default internal sink. It is
// empty when another sink was selected.
func (h *Handle) Body() []byte {
	return h.buf.Bytes()
}

// joinPairs renders pairs as k=v joined by '&', order preserved, bytes
// passed through untouched.
func joinPairs(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// completed guards the info getters.
func (h *Handle) completed() error {
	if !h.Valid() {
		return api.ErrHandleInvalid
	}
	if !h.req.Info.Completed {
		return api.ErrNotCompleted
	}
	return nil
}

// StatusCode returns the response status code of the completed transfer.
func (h *Handle) StatusCode() (int, error) {
	if err := h.completed(); err != nil {
		return 0, err
	}
	return h.req.Info.StatusCode, nil
}

// Proto returns the response protocol version, e.g. "HTTP/1.1".
func (h *Handle) Proto() (string, error) {
	if err := h.completed(); err != nil {
		return "", err
	}
	return h.req.Info.Proto, nil
}

// Status returns the full response status line reason, e.g. "200 OK".
func (h *Handle) Status() (string, error) {
	if err := h.completed(); err != nil {
		return "", err
	}
	return h.req.Info.Status, nil
}

// ContentType returns the response Content-Type header value.
func (h *Handle) ContentType() (string, error) {
	if err := h.completed(); err != nil {
		return "", err
	}
	return h.req.Info.ContentType, nil
}

// ContentLength returns the advertised response length, -1 when unknown.
func (h *Handle) ContentLength() (int64, error) {
	if err := h.completed(); err != nil {
		return 0, err
	}
	return h.req.Info.ContentLength, nil
}

// BytesReceived returns the decoded body byte count delivered to the sink.
func (h *Handle) BytesReceived() (int64, error) {
	if err := h.completed(); err != nil {
		return 0, err
	}
	return h.req.Info.BytesReceived, nil
}

// EffectiveURL returns the final URL after any redirects.
func (h *Handle) EffectiveURL() (string, error) {
	if err := h.completed(); err != nil {
		return "", err
	}
	return h.req.Info.EffectiveURL, nil
}

// ResponseHeaders returns the response header lines in wire order.
func (h *Handle) ResponseHeaders() ([]string, error) {
	if err := h.completed(); err != nil {
		return nil, err
	}
	return h.req.Info.Headers, nil
}

// TotalTime returns the wall time the completed transfer took.
func (h *Handle) TotalTime() (time.Duration, error) {
	if err := h.completed(); err != nil {
		return 0, err
	}
	return h.req.Info.TotalTime(), nil
}

// File: internal/engine/xfer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-transfer state and the progression helpers the engine runs from its
// drive entry points. A transfer walks stateNew → stateResolving →
// stateConnecting → stateSending → stateReceiving → stateDone, looping
// back to stateNew when a redirect restarts it against a new URL.

package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/hioload-fetch/api"
)

type xferState int

const (
	stateNew xferState = iota
	stateResolving
	stateConnecting
	stateSending
	stateReceiving
	stateDone
)

func (s xferState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateResolving:
		return "resolving"
	case stateConnecting:
		return "connecting"
	case stateSending:
		return "sending"
	case stateReceiving:
		return "receiving"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// interestNone marks a socket with no emitted watch request.
const interestNone api.SocketUpdate = -1

// xfer is one managed transfer.
type xfer struct {
	req  *api.Request
	sink io.Writer

	// method and body start as the request's and mutate on 301/302/303
	// redirects, which rewrite to GET.
	method string
	body   []byte

	state    xferState
	u        *url.URL
	port     int
	addrs    []net.IP
	addrIdx  int
	lastDial error

	fd       int
	interest api.SocketUpdate
	out      []byte

	parser      respParser
	decoding    encoding
	encBuf      bytes.Buffer
	discardBody bool

	redirectTo     *url.URL
	redirectStatus int
	redirects      int

	connectDeadline time.Time
	overallDeadline time.Time
}

// nextDeadline returns the soonest pending deadline, zero when none.
func (x *xfer) nextDeadline() time.Time {
	var d time.Time
	if x.state == stateConnecting && !x.connectDeadline.IsZero() {
		d = x.connectDeadline
	}
	if !x.overallDeadline.IsZero() && (d.IsZero() || x.overallDeadline.Before(d)) {
		d = x.overallDeadline
	}
	return d
}

func (x *xfer) connectTimeout() time.Duration {
	if t := x.req.Options.ConnectTimeout; t > 0 {
		return t
	}
	return api.DefaultConnectTimeout
}

func (x *xfer) maxRedirects() int {
	if n := x.req.Options.MaxRedirects; n > 0 {
		return n
	}
	return api.DefaultMaxRedirects
}

func (x *xfer) userAgent() string {
	if ua := x.req.Options.UserAgent; ua != "" {
		return ua
	}
	return api.DefaultUserAgent
}

// startTransfer resolves the transfer's host and launches the first
// connect attempt. Resolution is synchronous inside the drive, matching
// stock-resolver native builds.
func (e *Engine) startTransfer(x *xfer, now time.Time) {
	x.state = stateResolving
	host := x.u.Hostname()
	port := 80
	if p := x.u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			e.fail(x, api.Errorf(api.CodeBadURL, "invalid port %q", p))
			return
		}
		port = n
	}
	x.port = port
	e.trace(x, "resolving %s", host)
	addrs, err := net.LookupIP(host)
	if err != nil || len(addrs) == 0 {
		if err == nil {
			err = errors.New("no addresses")
		}
		e.fail(x, api.Wrap(api.CodeResolve, err, "resolve "+host))
		return
	}
	x.addrs = addrs
	x.addrIdx = 0
	x.lastDial = nil
	e.trace(x, "resolved %s to %d address(es)", host, len(addrs))
	e.connectNext(x, now)
}

// connectNext walks the resolved address list until a connect starts or
// every address is exhausted.
func (e *Engine) connectNext(x *xfer, now time.Time) {
	for x.addrIdx < len(x.addrs) {
		ip := x.addrs[x.addrIdx]
		x.addrIdx++
		fd, connected, err := sockConnect(ip, x.port)
		if err != nil {
			x.lastDial = err
			e.trace(x, "connect %v: %v", ip, err)
			continue
		}
		x.fd = fd
		x.interest = interestNone
		e.byFD[fd] = x
		x.connectDeadline = now.Add(x.connectTimeout())
		if connected {
			e.trace(x, "connected to %v port %d", ip, x.port)
			e.beginSend(x)
			return
		}
		x.state = stateConnecting
		e.trace(x, "connecting to %v port %d", ip, x.port)
		e.setInterest(x, api.WatchWrite)
		return
	}
	err := x.lastDial
	if err == nil {
		err = errors.New("no usable addresses")
	}
	e.fail(x, api.Wrap(api.CodeConnect, err, "connect to "+x.u.Host))
}

// checkConnect resolves the outcome of a pending nonblocking connect.
func (e *Engine) checkConnect(x *xfer, now time.Time) {
	if err := sockSoError(x.fd); err != nil {
		x.lastDial = err
		e.trace(x, "connect failed: %v", err)
		e.closeSocket(x)
		e.connectNext(x, now)
		return
	}
	e.trace(x, "connected, port %d", x.port)
	e.beginSend(x)
}

// beginSend renders the request and arms the write path.
func (e *Engine) beginSend(x *xfer) {
	x.state = stateSending
	x.out = x.renderRequest()
	x.parser.reset(x.method == "HEAD",
		func() error { return e.headersDone(x) },
		func(b []byte) error { return e.bodyChunk(x, b) })
	x.connectDeadline = time.Time{}
	e.trace(x, "sending %s request, %d bytes", x.method, len(x.out))
	e.setInterest(x, api.WatchWrite)
}

// flushSend pushes request bytes until the kernel pushes back.
func (e *Engine) flushSend(x *xfer) {
	for len(x.out) > 0 {
		n, err := sockWrite(x.fd, x.out)
		if err == errWouldBlock {
			return
		}
		if err != nil {
			e.fail(x, api.Wrap(api.CodeSend, err, "write request"))
			return
		}
		x.out = x.out[n:]
	}
	x.state = stateReceiving
	e.trace(x, "request sent, awaiting response")
	e.setInterest(x, api.WatchRead)
}

// pumpRecv reads until the socket would block, feeding the parser.
func (e *Engine) pumpRecv(x *xfer) {
	buf := e.readBuf.GetBuffer()
	defer e.readBuf.PutBuffer(buf)
	for {
		n, err := sockRead(x.fd, buf)
		if err == errWouldBlock {
			return
		}
		if err == io.EOF {
			if ferr := x.parser.finishEOF(); ferr != nil {
				e.fail(x, ferr)
				return
			}
			e.finishBody(x)
			return
		}
		if err != nil {
			e.fail(x, api.Wrap(api.CodeRecv, err, "read response"))
			return
		}
		if ferr := x.parser.feed(buf[:n]); ferr != nil {
			e.fail(x, ferr)
			return
		}
		if x.parser.done {
			e.finishBody(x)
			return
		}
	}
}

// headersDone records the response metadata and decides whether the body
// is a redirect to discard or a payload to deliver.
func (e *Engine) headersDone(x *xfer) error {
	p := &x.parser
	info := &x.req.Info
	info.StatusCode = p.statusCode
	info.Proto = p.proto
	info.Status = p.status
	info.Headers = p.headers
	info.ContentLength = p.contentLength
	info.ContentType = headerValue(p.headers, "Content-Type")
	e.trace(x, "status %s %d %s", p.proto, p.statusCode, p.status)

	if x.req.Options.FollowRedirect && isRedirect(p.statusCode) {
		if loc := headerValue(p.headers, "Location"); loc != "" {
			next, err := x.u.Parse(loc)
			if err != nil {
				return api.Wrap(api.CodeBadURL, err, "malformed redirect location")
			}
			if next.Scheme != "http" {
				return api.Errorf(api.CodeUnsupportedProtocol, "redirect to unsupported scheme %q", next.Scheme)
			}
			x.redirectTo = next
			x.redirectStatus = p.statusCode
			x.discardBody = true
			e.trace(x, "redirect %d to %s", p.statusCode, next)
			return nil
		}
		// A 3xx without Location is an ordinary final response.
	}

	if x.req.Options.AcceptEncoding {
		ce := strings.ToLower(headerValue(p.headers, "Content-Encoding"))
		switch ce {
		case "", "identity":
		case "gzip", "x-gzip":
			x.decoding = encGzip
		case "deflate":
			x.decoding = encDeflate
		default:
			return api.Errorf(api.CodeDecode, "unsupported content encoding %q", ce)
		}
	}
	return nil
}

func isRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// bodyChunk handles one framing-stripped body slice.
func (e *Engine) bodyChunk(x *xfer, b []byte) error {
	if x.discardBody {
		return nil
	}
	if x.decoding != encIdentity {
		x.encBuf.Write(b)
		return nil
	}
	n, err := x.sink.Write(b)
	x.req.Info.BytesReceived += int64(n)
	if err != nil {
		return api.Wrap(api.CodeRecv, err, "write body to sink")
	}
	return nil
}

// finishBody completes a fully-parsed response: either by chasing the
// pending redirect or by delivering the (possibly decoded) payload.
func (e *Engine) finishBody(x *xfer) {
	if x.redirectTo != nil {
		e.startRedirect(x)
		return
	}
	x.req.Info.Headers = x.parser.headers // include any trailer fields
	if x.decoding != encIdentity {
		decoded, err := decodeBody(x.decoding, x.encBuf.Bytes())
		if err != nil {
			e.fail(x, api.Wrap(api.CodeDecode, err, "decode "+x.decoding.String()+" body"))
			return
		}
		n, werr := x.sink.Write(decoded)
		x.req.Info.BytesReceived = int64(n)
		if werr != nil {
			e.fail(x, api.Wrap(api.CodeRecv, werr, "write body to sink"))
			return
		}
	}
	e.trace(x, "transfer complete, %d bytes", x.req.Info.BytesReceived)
	e.complete(x, api.CodeOK, nil)
}

// startRedirect tears down the current connection and requeues the
// transfer against the redirect target.
func (e *Engine) startRedirect(x *xfer) {
	e.closeSocket(x)
	x.redirects++
	if x.redirects > x.maxRedirects() {
		e.fail(x, api.Errorf(api.CodeTooManyRedirects, "stopped after %d redirects", x.maxRedirects()))
		return
	}
	switch x.redirectStatus {
	case 301, 302:
		// Historic client behavior: POST rewrites to a bodyless GET.
		if x.method == "POST" {
			x.method = "GET"
			x.body = nil
		}
	case 303:
		if x.method != "GET" && x.method != "HEAD" {
			x.method = "GET"
			x.body = nil
		}
	}
	x.u = x.redirectTo
	x.redirectTo = nil
	x.redirectStatus = 0
	x.discardBody = false
	x.decoding = encIdentity
	x.encBuf.Reset()
	x.out = nil
	x.state = stateNew
	info := &x.req.Info
	info.Redirects = x.redirects
	info.EffectiveURL = x.u.String()
	e.startq = append(e.startq, x)
}

// renderRequest serializes the request head and body. Caller-supplied
// header lines override the generated defaults key by key.
func (x *xfer) renderRequest() []byte {
	var b bytes.Buffer
	target := x.u.RequestURI()
	if target == "" {
		target = "/"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", x.method, target)

	custom := make(map[string]bool, len(x.req.Header))
	for _, line := range x.req.Header {
		key, _, _ := strings.Cut(line, ":")
		custom[strings.ToLower(strings.TrimSpace(key))] = true
	}
	if !custom["host"] {
		fmt.Fprintf(&b, "Host: %s\r\n", hostHeader(x.u))
	}
	if !custom["user-agent"] {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", x.userAgent())
	}
	if !custom["accept"] {
		b.WriteString("Accept: */*\r\n")
	}
	if !custom["connection"] {
		b.WriteString("Connection: close\r\n")
	}
	if x.req.Options.AcceptEncoding && !custom["accept-encoding"] {
		b.WriteString("Accept-Encoding: gzip, deflate\r\n")
	}
	if x.body != nil && !custom["content-length"] {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(x.body))
	}
	for _, line := range x.req.Header {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.Write(x.body)
	return b.Bytes()
}

// hostHeader renders the Host value, dropping the default port.
func hostHeader(u *url.URL) string {
	host := u.Host
	if strings.HasSuffix(host, ":80") {
		host = strings.TrimSuffix(host, ":80")
	}
	return host
}

// headerValue returns the first value of a header key in pre-rendered
// "Key: Value" lines, "" when absent.
func headerValue(lines []string, key string) string {
	for _, line := range lines {
		k, v, found := strings.Cut(line, ":")
		if found && strings.EqualFold(strings.TrimSpace(k), key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// trace logs a per-transfer diagnostic when the transfer asked for it.
func (e *Engine) trace(x *xfer, format string, args ...any) {
	if !x.req.Options.Verbose {
		return
	}
	e.logger.Printf("[engine] %s: %s", x.req.URL, fmt.Sprintf(format, args...))
}

// File: internal/engine/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental HTTP/1.1 response parser. Bytes arrive in whatever slices
// the socket produces; the parser carries its state between feeds and
// pushes decoded-framing body bytes out through a callback. Interim 1xx
// responses are consumed silently; line endings accept both CRLF and a
// bare LF.

package engine

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/momentics/hioload-fetch/api"
)

type parsePhase int

const (
	phaseStatus parsePhase = iota
	phaseHeaders
	phaseBody
	phaseDone
)

type bodyMode int

const (
	modeNone bodyMode = iota
	modeLength
	modeChunked
	modeUntilClose
)

type chunkPhase int

const (
	chunkSize chunkPhase = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// maxLineLen bounds any single status, header or chunk-size line.
const maxLineLen = 64 * 1024

// respParser consumes one HTTP/1.1 response.
type respParser struct {
	// isHead suppresses the body: HEAD responses carry framing headers for
	// a body that never arrives.
	isHead bool
	// onHeaders runs once after the final header block; an error fails the
	// transfer before any body byte is delivered.
	onHeaders func() error
	// onBody receives body bytes with transfer framing stripped.
	onBody func([]byte) error

	phase   parsePhase
	interim bool
	line    []byte
	total   int64

	proto      string
	status     string
	statusCode int
	headers    []string

	contentLength int64
	chunked       bool

	bodyMode bodyMode
	remain   int64
	cphase   chunkPhase
	done     bool
}

func (p *respParser) reset(isHead bool, onHeaders func() error, onBody func([]byte) error) {
	*p = respParser{
		isHead:        isHead,
		onHeaders:     onHeaders,
		onBody:        onBody,
		contentLength: -1,
	}
}

// feed consumes b. Errors are coded: framing violations CodeBadResponse,
// everything surfaced by the callbacks keeps its own code.
func (p *respParser) feed(b []byte) error {
	p.total += int64(len(b))
	for len(b) > 0 && p.phase != phaseDone {
		var err error
		switch p.phase {
		case phaseStatus, phaseHeaders:
			b, err = p.feedLines(b)
		case phaseBody:
			b, err = p.feedBody(b)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// takeLine accumulates bytes until LF, returning the completed line with
// the terminator stripped, or ok=false when b ran out first.
func (p *respParser) takeLine(b []byte) (line string, rest []byte, ok bool, err error) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		if len(p.line)+len(b) > maxLineLen {
			return "", nil, false, api.Errorf(api.CodeBadResponse, "header line exceeds %d bytes", maxLineLen)
		}
		p.line = append(p.line, b...)
		return "", nil, false, nil
	}
	raw := b[:i]
	if len(p.line)+len(raw) > maxLineLen {
		return "", nil, false, api.Errorf(api.CodeBadResponse, "header line exceeds %d bytes", maxLineLen)
	}
	p.line = append(p.line, raw...)
	line = strings.TrimSuffix(string(p.line), "\r")
	p.line = p.line[:0]
	return line, b[i+1:], true, nil
}

func (p *respParser) feedLines(b []byte) ([]byte, error) {
	for len(b) > 0 {
		line, rest, ok, err := p.takeLine(b)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		b = rest
		switch p.phase {
		case phaseStatus:
			if line == "" {
				// Stray blank lines before the status line are tolerated.
				continue
			}
			if err := p.parseStatusLine(line); err != nil {
				return nil, err
			}
			p.phase = phaseHeaders
		case phaseHeaders:
			if line == "" {
				if p.interim {
					// Interim response consumed; the real one follows.
					p.interim = false
					p.phase = phaseStatus
					continue
				}
				if err := p.headersComplete(); err != nil {
					return nil, err
				}
				return b, nil
			}
			if err := p.parseHeaderLine(line); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (p *respParser) parseStatusLine(line string) error {
	proto, rest, found := strings.Cut(line, " ")
	if !found || !strings.HasPrefix(proto, "HTTP/") {
		return api.Errorf(api.CodeBadResponse, "malformed status line %q", line)
	}
	codeStr, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return api.Errorf(api.CodeBadResponse, "malformed status code in %q", line)
	}
	if code == 101 {
		return api.Errorf(api.CodeBadResponse, "unexpected 101 protocol switch")
	}
	if code >= 100 && code < 200 {
		p.interim = true
		return nil
	}
	p.proto = proto
	p.statusCode = code
	p.status = strings.TrimSpace(reason)
	return nil
}

func (p *respParser) parseHeaderLine(line string) error {
	if p.interim {
		return nil
	}
	p.headers = append(p.headers, line)
	key, value, found := strings.Cut(line, ":")
	if !found {
		return api.Errorf(api.CodeBadResponse, "malformed header line %q", line)
	}
	value = strings.TrimSpace(value)
	switch {
	case strings.EqualFold(key, "Content-Length"):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return api.Errorf(api.CodeBadResponse, "malformed Content-Length %q", value)
		}
		if p.contentLength >= 0 && p.contentLength != n {
			return api.Errorf(api.CodeBadResponse, "conflicting Content-Length headers")
		}
		p.contentLength = n
	case strings.EqualFold(key, "Transfer-Encoding"):
		if strings.Contains(strings.ToLower(value), "chunked") {
			p.chunked = true
		}
	}
	return nil
}

func (p *respParser) headersComplete() error {
	switch {
	case p.isHead || p.statusCode == 204 || p.statusCode == 304:
		p.bodyMode = modeNone
	case p.chunked:
		// Chunked framing overrides any advertised length.
		p.bodyMode = modeChunked
		p.cphase = chunkSize
	case p.contentLength == 0:
		p.bodyMode = modeNone
	case p.contentLength > 0:
		p.bodyMode = modeLength
		p.remain = p.contentLength
	default:
		p.bodyMode = modeUntilClose
	}
	if p.onHeaders != nil {
		if err := p.onHeaders(); err != nil {
			return err
		}
	}
	if p.bodyMode == modeNone {
		p.markDone()
	} else {
		p.phase = phaseBody
	}
	return nil
}

func (p *respParser) feedBody(b []byte) ([]byte, error) {
	switch p.bodyMode {
	case modeLength:
		take := int64(len(b))
		if take > p.remain {
			take = p.remain
		}
		if err := p.emit(b[:take]); err != nil {
			return nil, err
		}
		p.remain -= take
		if p.remain == 0 {
			p.markDone()
		}
		return b[take:], nil
	case modeUntilClose:
		if err := p.emit(b); err != nil {
			return nil, err
		}
		return nil, nil
	case modeChunked:
		return p.feedChunked(b)
	}
	p.markDone()
	return b, nil
}

func (p *respParser) feedChunked(b []byte) ([]byte, error) {
	for len(b) > 0 {
		switch p.cphase {
		case chunkSize:
			line, rest, ok, err := p.takeLine(b)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			b = rest
			size, err := parseChunkSize(line)
			if err != nil {
				return nil, err
			}
			if size == 0 {
				p.cphase = chunkTrailer
				continue
			}
			p.remain = size
			p.cphase = chunkData
		case chunkData:
			take := int64(len(b))
			if take > p.remain {
				take = p.remain
			}
			if err := p.emit(b[:take]); err != nil {
				return nil, err
			}
			p.remain -= take
			b = b[take:]
			if p.remain == 0 {
				p.cphase = chunkDataEnd
			}
		case chunkDataEnd:
			line, rest, ok, err := p.takeLine(b)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			if line != "" {
				return nil, api.Errorf(api.CodeBadResponse, "missing chunk terminator")
			}
			b = rest
			p.cphase = chunkSize
		case chunkTrailer:
			line, rest, ok, err := p.takeLine(b)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			b = rest
			if line == "" {
				p.markDone()
				return b, nil
			}
			// Trailer fields surface alongside the headers.
			p.headers = append(p.headers, line)
		}
	}
	return b, nil
}

func parseChunkSize(line string) (int64, error) {
	// Chunk extensions after ';' are ignored.
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil || size < 0 {
		return 0, api.Errorf(api.CodeBadResponse, "malformed chunk size %q", line)
	}
	return size, nil
}

func (p *respParser) emit(b []byte) error {
	if len(b) == 0 || p.onBody == nil {
		return nil
	}
	return p.onBody(b)
}

func (p *respParser) markDone() {
	p.phase = phaseDone
	p.done = true
}

// finishEOF resolves an orderly connection close. Read-until-close bodies
// complete; anything else cut short is an error.
func (p *respParser) finishEOF() error {
	switch p.phase {
	case phaseDone:
		return nil
	case phaseBody:
		if p.bodyMode == modeUntilClose {
			p.markDone()
			return nil
		}
		return api.Errorf(api.CodeBadResponse, "connection closed mid-body")
	case phaseStatus:
		if p.total == 0 {
			return api.Errorf(api.CodeRecv, "server closed connection without response")
		}
		return api.Errorf(api.CodeBadResponse, "truncated status line")
	default:
		return api.Errorf(api.CodeBadResponse, "truncated response headers")
	}
}

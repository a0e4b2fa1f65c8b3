// Package api
// Author: momentics <momentics@gmail.com>
//
// Transfer result codes for the hioload-fetch library. A Code is the
// engine-level outcome of one transfer, surfaced verbatim through the
// driver, the transfer handle and the client facade.

package api

import "errors"

// Code is the result code of a single transfer.
//
// CodeOK is the only success value. Every other code identifies the phase
// that failed; codes are stable and safe to compare or switch on.
type Code int

const (
	CodeOK Code = iota
	CodeUnsupportedProtocol
	CodeBadURL
	CodeResolve
	CodeConnect
	CodeSend
	CodeRecv
	CodeBadResponse
	CodeTooManyRedirects
	CodeDecode
	CodeTimeout
	CodeAborted
	CodeInternal
	CodeUnknownOption
	CodeBadValue
)

var codeNames = map[Code]string{
	CodeOK:                  "ok",
	CodeUnsupportedProtocol: "unsupported protocol",
	CodeBadURL:              "malformed url",
	CodeResolve:             "could not resolve host",
	CodeConnect:             "could not connect",
	CodeSend:                "send failure",
	CodeRecv:                "receive failure",
	CodeBadResponse:         "malformed response",
	CodeTooManyRedirects:    "too many redirects",
	CodeDecode:              "content decode failure",
	CodeTimeout:             "transfer timed out",
	CodeAborted:             "transfer aborted",
	CodeInternal:            "internal error",
	CodeUnknownOption:       "unknown option",
	CodeBadValue:            "bad option value",
}

// String returns the human-readable name of the code.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown code"
}

// Error makes a Code usable directly as an error value. CodeOK must not be
// returned as a non-nil error; use Err instead when the code may be CodeOK.
func (c Code) Error() string {
	return c.String()
}

// Err maps CodeOK to nil and any other code to itself as an error.
func (c Code) Err() error {
	if c == CodeOK {
		return nil
	}
	return c
}

// IsTimeout reports whether err resolves to CodeTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, CodeTimeout)
}

// IsAborted reports whether err resolves to CodeAborted, the code delivered
// on cancellation and driver shutdown.
func IsAborted(err error) bool {
	return errors.Is(err, CodeAborted)
}

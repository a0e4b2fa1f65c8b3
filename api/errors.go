// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-fetch library.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrDriverClosed     = fmt.Errorf("driver is closed")
	ErrReactorClosed    = fmt.Errorf("reactor is closed")
	ErrEngineClosed     = fmt.Errorf("engine is closed")
	ErrEngineBound      = fmt.Errorf("engine already bound to a driver")
	ErrHandleInvalid    = fmt.Errorf("transfer handle is invalid")
	ErrAlreadySubmitted = fmt.Errorf("transfer already submitted")
	ErrNotCompleted     = fmt.Errorf("transfer has not completed")
	ErrNotSupported     = fmt.Errorf("operation not supported")
)

// Error is a structured transfer error carrying the engine result code, a
// message describing the failing phase, and the underlying cause if any.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches a bare Code target, so errors.Is(err, CodeTimeout) works on
// wrapped structured errors.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && e.Code == c
}

// Errorf builds a structured error from a code and a format string.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause
// yields the same result as Errorf.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the transfer code carried by err. A nil error maps to
// CodeOK; errors carrying no code map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return CodeInternal
}

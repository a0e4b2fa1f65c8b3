// File: api/codes_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/momentics/hioload-fetch/api"
)

func TestCodeStringNames(t *testing.T) {
	cases := []struct {
		code api.Code
		want string
	}{
		{api.CodeOK, "ok"},
		{api.CodeUnsupportedProtocol, "unsupported protocol"},
		{api.CodeConnect, "could not connect"},
		{api.CodeTimeout, "transfer timed out"},
		{api.CodeAborted, "transfer aborted"},
		{api.CodeBadValue, "bad option value"},
		{api.Code(99), "unknown code"},
	}
	for _, c := range cases {
		if got := c.code.String(); got != c.want {
			t.Errorf("Code(%d).String() = %q, want %q", int(c.code), got, c.want)
		}
	}
}

func TestCodeErrMapsOKToNil(t *testing.T) {
	if err := api.CodeOK.Err(); err != nil {
		t.Fatalf("CodeOK.Err() = %v, want nil", err)
	}
	err := api.CodeTimeout.Err()
	if err == nil {
		t.Fatal("CodeTimeout.Err() = nil")
	}
	if !errors.Is(err, api.CodeTimeout) {
		t.Fatalf("errors.Is(%v, CodeTimeout) = false", err)
	}
	if err.Error() != "transfer timed out" {
		t.Fatalf("Err().Error() = %q", err.Error())
	}
}

func TestCodeUsableAsError(t *testing.T) {
	var err error = api.CodeConnect
	if err.Error() != "could not connect" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, api.CodeConnect) {
		t.Fatal("bare code must match itself")
	}
	if errors.Is(err, api.CodeTimeout) {
		t.Fatal("distinct codes must not match")
	}
}

func TestIsTimeout(t *testing.T) {
	if !api.IsTimeout(api.CodeTimeout) {
		t.Fatal("bare CodeTimeout not detected")
	}
	wrapped := api.Errorf(api.CodeTimeout, "transfer exceeded deadline")
	if !api.IsTimeout(wrapped) {
		t.Fatal("structured timeout not detected")
	}
	chained := fmt.Errorf("run: %w", wrapped)
	if !api.IsTimeout(chained) {
		t.Fatal("chained timeout not detected")
	}
	if api.IsTimeout(api.Errorf(api.CodeConnect, "refused")) {
		t.Fatal("connect failure misreported as timeout")
	}
	if api.IsTimeout(nil) {
		t.Fatal("nil misreported as timeout")
	}
}

func TestIsAborted(t *testing.T) {
	err := api.Wrap(api.CodeAborted, api.ErrDriverClosed, "driver closed")
	if !api.IsAborted(err) {
		t.Fatal("abort on shutdown not detected")
	}
	if api.IsAborted(api.CodeTimeout.Err()) {
		t.Fatal("timeout misreported as abort")
	}
}

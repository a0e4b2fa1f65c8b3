// File: transfer/options_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transfer_test

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/transfer"
)

func TestSetAppliesTypedValues(t *testing.T) {
	h := transfer.New()
	steps := []struct {
		opt transfer.Option
		v   any
	}{
		{transfer.OptTimeout, 2 * time.Second},
		{transfer.OptConnectTimeout, 500}, // milliseconds
		{transfer.OptFollowRedirects, true},
		{transfer.OptMaxRedirects, 3},
		{transfer.OptUserAgent, "probe/1.0"},
		{transfer.OptAcceptEncoding, true},
		{transfer.OptVerbose, true},
	}
	for _, s := range steps {
		if err := h.Set(s.opt, s.v); err != nil {
			t.Fatalf("Set(%v, %v): %v", s.opt, s.v, err)
		}
	}
	o := h.Request().Options
	if o.Timeout != 2*time.Second {
		t.Fatalf("timeout = %v", o.Timeout)
	}
	if o.ConnectTimeout != 500*time.Millisecond {
		t.Fatalf("connect timeout = %v, want millisecond interpretation", o.ConnectTimeout)
	}
	if !o.FollowRedirect || o.MaxRedirects != 3 {
		t.Fatalf("redirects = %v / %d", o.FollowRedirect, o.MaxRedirects)
	}
	if o.UserAgent != "probe/1.0" || !o.AcceptEncoding || !o.Verbose {
		t.Fatalf("options = %+v", o)
	}
}

func TestSetRejectsWrongTypes(t *testing.T) {
	h := transfer.New()
	cases := []struct {
		name string
		opt  transfer.Option
		v    any
	}{
		{"string timeout", transfer.OptTimeout, "2s"},
		{"int follow", transfer.OptFollowRedirects, 1},
		{"bool redirect cap", transfer.OptMaxRedirects, true},
		{"int agent", transfer.OptUserAgent, 7},
		{"string verbose", transfer.OptVerbose, "yes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.Set(tc.opt, tc.v); !errors.Is(err, api.CodeBadValue) {
				t.Fatalf("Set = %v, want CodeBadValue", err)
			}
		})
	}
}

func TestSetUnknownOption(t *testing.T) {
	h := transfer.New()
	if err := h.Set(transfer.Option(99), true); !errors.Is(err, api.CodeUnknownOption) {
		t.Fatalf("Set(unknown) = %v, want CodeUnknownOption", err)
	}
}

func TestNegativeDurationsRejected(t *testing.T) {
	h := transfer.New()
	if err := h.SetTimeout(-time.Second); !errors.Is(err, api.CodeBadValue) {
		t.Fatalf("SetTimeout(-1s) = %v, want CodeBadValue", err)
	}
	if err := h.SetConnectTimeout(-time.Second); !errors.Is(err, api.CodeBadValue) {
		t.Fatalf("SetConnectTimeout(-1s) = %v, want CodeBadValue", err)
	}
	if err := h.SetMaxRedirects(-1); !errors.Is(err, api.CodeBadValue) {
		t.Fatalf("SetMaxRedirects(-1) = %v, want CodeBadValue", err)
	}
}

func TestOptionsLockedWhileInFlight(t *testing.T) {
	h := transfer.New()
	if _, err := h.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.SetTimeout(time.Second); !errors.Is(err, api.ErrAlreadySubmitted) {
		t.Fatalf("SetTimeout in flight = %v, want ErrAlreadySubmitted", err)
	}
	if err := h.Set(transfer.OptVerbose, true); !errors.Is(err, api.ErrAlreadySubmitted) {
		t.Fatalf("Set in flight = %v, want ErrAlreadySubmitted", err)
	}
}

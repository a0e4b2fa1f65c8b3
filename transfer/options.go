// File: transfer/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-transfer option surface: a typed setter for every knob plus the
// generic Set entry point used by callers that carry options as data
// (the CLI flag table, scripted configurations). Set validates both the
// option tag and the dynamic value type, so misconfigurations surface
// as CodeUnknownOption / CodeBadValue instead of silently defaulting.

package transfer

import (
	"time"

	"github.com/momentics/hioload-fetch/api"
)

// Option tags one settable transfer knob for the generic Set call.
type Option int

const (
	// OptTimeout bounds the whole transfer. Accepts time.Duration, or
	// int/int64 milliseconds. Zero means unlimited.
	OptTimeout Option = iota + 1
	// OptConnectTimeout bounds each connect attempt. Same value types
	// as OptTimeout; zero selects api.DefaultConnectTimeout.
	OptConnectTimeout
	// OptFollowRedirects (bool) chases 3xx Location responses.
	OptFollowRedirects
	// OptMaxRedirects (int) caps followed redirects; zero selects
	// api.DefaultMaxRedirects.
	OptMaxRedirects
	// OptUserAgent (string) overrides the User-Agent header value.
	OptUserAgent
	// OptAcceptEncoding (bool) advertises and transparently decodes
	// gzip/deflate response bodies.
	OptAcceptEncoding
	// OptVerbose (bool) enables per-phase trace logging.
	OptVerbose
)

func (o Option) String() string {
	switch o {
	case OptTimeout:
		return "timeout"
	case OptConnectTimeout:
		return "connect-timeout"
	case OptFollowRedirects:
		return "follow-redirects"
	case OptMaxRedirects:
		return "max-redirects"
	case OptUserAgent:
		return "user-agent"
	case OptAcceptEncoding:
		return "accept-encoding"
	case OptVerbose:
		return "verbose"
	}
	return "unknown"
}

// Set applies one option carried as data. The value type must match the
// option: durations take time.Duration or int/int64 milliseconds, the
// rest take their natural Go type.
func (h *Handle) Set(opt Option, v any) error {
	switch opt {
	case OptTimeout:
		d, err := durationValue(v)
		if err != nil {
			return err
		}
		return h.SetTimeout(d)
	case OptConnectTimeout:
		d, err := durationValue(v)
		if err != nil {
			return err
		}
		return h.SetConnectTimeout(d)
	case OptFollowRedirects:
		b, err := boolValue(v)
		if err != nil {
			return err
		}
		return h.SetFollowRedirects(b)
	case OptMaxRedirects:
		n, err := intValue(v)
		if err != nil {
			return err
		}
		return h.SetMaxRedirects(n)
	case OptUserAgent:
		s, ok := v.(string)
		if !ok {
			return api.Errorf(api.CodeBadValue, "option %s wants string, got %T", opt, v)
		}
		return h.SetUserAgent(s)
	case OptAcceptEncoding:
		b, err := boolValue(v)
		if err != nil {
			return err
		}
		return h.SetAcceptEncoding(b)
	case OptVerbose:
		b, err := boolValue(v)
		if err != nil {
			return err
		}
		return h.SetVerbose(b)
	}
	return api.Errorf(api.CodeUnknownOption, "unknown transfer option %d", int(opt))
}

func durationValue(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	}
	return 0, api.Errorf(api.CodeBadValue, "want time.Duration or milliseconds, got %T", v)
}

func boolValue(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, api.Errorf(api.CodeBadValue, "want bool, got %T", v)
	}
	return b, nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, api.Errorf(api.CodeBadValue, "want int, got %T", v)
}

// SetTimeout bounds the whole transfer including redirect hops. Zero
// removes the bound.
func (h *Handle) SetTimeout(d time.Duration) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if d < 0 {
		return api.Errorf(api.CodeBadValue, "negative timeout %v", d)
	}
	h.req.Options.Timeout = d
	return nil
}

// SetConnectTimeout bounds each connect attempt separately from the
// overall budget. Zero selects api.DefaultConnectTimeout.
func (h *Handle) SetConnectTimeout(d time.Duration) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if d < 0 {
		return api.Errorf(api.CodeBadValue, "negative connect timeout %v", d)
	}
	h.req.Options.ConnectTimeout = d
	return nil
}

// SetFollowRedirects controls whether 3xx responses with a Location
// header are chased.
func (h *Handle) SetFollowRedirects(follow bool) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Options.FollowRedirect = follow
	return nil
}

// SetMaxRedirects caps the redirect chain; zero selects
// api.DefaultMaxRedirects.
func (h *Handle) SetMaxRedirects(n int) error {
	if err := h.mutable(); err != nil {
		return err
	}
	if n < 0 {
		return api.Errorf(api.CodeBadValue, "negative redirect cap %d", n)
	}
	h.req.Options.MaxRedirects = n
	return nil
}

// SetUserAgent overrides the User-Agent header; "" restores the default.
func (h *Handle) SetUserAgent(ua string) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Options.UserAgent = ua
	return nil
}

// SetAcceptEncoding advertises gzip/deflate support and transparently
// decodes the response body before it reaches the sink.
func (h *Handle) SetAcceptEncoding(on bool) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Options.AcceptEncoding = on
	return nil
}

// SetVerbose routes per-phase transfer traces to the driver logger.
func (h *Handle) SetVerbose(on bool) error {
	if err := h.mutable(); err != nil {
		return err
	}
	h.req.Options.Verbose = on
	return nil
}

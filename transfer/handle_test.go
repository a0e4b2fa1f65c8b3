// File: transfer/handle_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transfer_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/transfer"
)

func TestHandleDefaults(t *testing.T) {
	h := transfer.New()
	if !h.Valid() {
		t.Fatal("new handle not valid")
	}
	req := h.Request()
	if req == nil || req.Method != "GET" {
		t.Fatalf("request = %+v, want GET default", req)
	}
	if req.Sink == nil {
		t.Fatal("default sink not installed")
	}
	if req.Body != nil || len(req.Header) != 0 {
		t.Fatal("fresh handle carries body or headers")
	}
}

func TestHandleSetURLWithParams(t *testing.T) {
	h := transfer.New()
	err := h.SetURLWithParams("http://example.test/search", []transfer.Pair{
		{Key: "q", Value: "go"},
		{Key: "page", Value: "2"},
	})
	if err != nil {
		t.Fatalf("SetURLWithParams: %v", err)
	}
	if got, want := h.Request().URL, "http://example.test/search?q=go&page=2"; got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
	if err := h.SetURLWithParams("http://example.test/plain", nil); err != nil {
		t.Fatalf("SetURLWithParams(nil): %v", err)
	}
	if got := h.Request().URL; got != "http://example.test/plain" {
		t.Fatalf("url = %q, want no query separator", got)
	}
}

func TestHandleSetMethod(t *testing.T) {
	h := transfer.New()
	if err := h.SetMethod("put"); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}
	if got := h.Request().Method; got != "PUT" {
		t.Fatalf("method = %q, want upper-cased PUT", got)
	}
	if err := h.SetMethod(""); !errors.Is(err, api.CodeBadValue) {
		t.Fatalf("SetMethod(\"\") = %v, want CodeBadValue", err)
	}
}

func TestHandleBodyImpliesPost(t *testing.T) {
	h := transfer.New()
	if err := h.SetBody([]byte("payload")); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	if got := h.Request().Method; got != "POST" {
		t.Fatalf("method = %q after SetBody, want POST", got)
	}
	if err := h.SetBody(nil); err != nil {
		t.Fatalf("SetBody(nil): %v", err)
	}
	if got := h.Request().Method; got != "GET" {
		t.Fatalf("method = %q after SetBody(nil), want GET", got)
	}
}

func TestHandleExplicitMethodSurvivesBody(t *testing.T) {
	h := transfer.New()
	if err := h.SetMethod("PUT"); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}
	if err := h.SetBody([]byte("doc")); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	if got := h.Request().Method; got != "PUT" {
		t.Fatalf("method = %q, explicit method must survive body setter", got)
	}
}

func TestHandleSetForm(t *testing.T) {
	h := transfer.New()
	err := h.SetForm([]transfer.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}})
	if err != nil {
		t.Fatalf("SetForm: %v", err)
	}
	req := h.Request()
	if got := string(req.Body); got != "a=1&b=2" {
		t.Fatalf("form body = %q", got)
	}
	if req.Method != "POST" {
		t.Fatalf("method = %q, want POST", req.Method)
	}
	found := false
	for _, line := range req.Header {
		if line == "Content-Type: application/x-www-form-urlencoded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("headers = %v, missing form content type", req.Header)
	}
}

func TestHandleHeaderLines(t *testing.T) {
	h := transfer.New()
	if err := h.AddHeader("X-Token", "abc"); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	if !h.AddHeaderLine("X-Raw: yes\r\n") {
		t.Fatal("well-formed header line rejected")
	}
	if h.AddHeaderLine("no colon here") {
		t.Fatal("malformed header line accepted")
	}
	want := []string{"X-Token: abc", "X-Raw: yes"}
	got := h.Request().Header
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("headers = %v, want %v", got, want)
	}
	h.ClearHeaders()
	if len(h.Request().Header) != 0 {
		t.Fatal("ClearHeaders left lines behind")
	}
}

func TestHandleSinkSelection(t *testing.T) {
	h := transfer.New()
	if err := h.SinkWriter(nil); !errors.Is(err, api.CodeBadValue) {
		t.Fatalf("SinkWriter(nil) = %v, want CodeBadValue", err)
	}
	if err := h.SinkBuffer(nil); !errors.Is(err, api.CodeBadValue) {
		t.Fatalf("SinkBuffer(nil) = %v, want CodeBadValue", err)
	}
	var own bytes.Buffer
	if err := h.SinkBuffer(&own); err != nil {
		t.Fatalf("SinkBuffer: %v", err)
	}
	h.Request().Sink.Write([]byte("routed"))
	if own.String() != "routed" {
		t.Fatal("borrowed buffer did not receive sink writes")
	}
	if len(h.Body()) != 0 {
		t.Fatal("internal buffer filled while a borrowed sink was active")
	}
	if err := h.SinkDefault(); err != nil {
		t.Fatalf("SinkDefault: %v", err)
	}
	h.Request().Sink.Write([]byte("back"))
	if string(h.Body()) != "back" {
		t.Fatalf("Body() = %q after SinkDefault", h.Body())
	}
}

func TestHandleSubmissionLocksSetters(t *testing.T) {
	h := transfer.New()
	if err := h.SetURL("http://example.test/"); err != nil {
		t.Fatalf("SetURL: %v", err)
	}
	req, err := h.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.SetURL("http://other.test/"); !errors.Is(err, api.ErrAlreadySubmitted) {
		t.Fatalf("setter while in flight = %v, want ErrAlreadySubmitted", err)
	}
	if _, err := h.Acquire(); !errors.Is(err, api.ErrAlreadySubmitted) {
		t.Fatalf("double Acquire = %v, want ErrAlreadySubmitted", err)
	}
	// Completion unlocks the handle.
	req.Info.Completed = true
	if err := h.SetURL("http://other.test/"); err != nil {
		t.Fatalf("setter after completion: %v", err)
	}
}

func TestHandleResetMintsFreshIdentity(t *testing.T) {
	h := transfer.New()
	h.SetURL("http://example.test/")
	h.AddHeader("X-A", "1")
	h.SetBody([]byte("data"))
	old, err := h.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	fresh := h.Request()
	if fresh == old {
		t.Fatal("Reset kept the old request identity")
	}
	if fresh.URL != old.URL || fresh.Method != old.Method || string(fresh.Body) != "data" {
		t.Fatal("Reset dropped configuration")
	}
	if &fresh.Body[0] == &old.Body[0] {
		t.Fatal("Reset aliased the old body slice")
	}
	if _, err := h.Acquire(); err != nil {
		t.Fatalf("Acquire after Reset: %v", err)
	}
}

func TestHandleCloneCopiesConfigurationOnly(t *testing.T) {
	h := transfer.New()
	h.SetURL("http://example.test/")
	h.AddHeader("X-A", "1")
	h.SetBody([]byte("data"))
	if _, err := h.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	c := h.Clone()
	if !c.Valid() {
		t.Fatal("clone not valid")
	}
	if _, err := c.Acquire(); err != nil {
		t.Fatalf("clone must start unsubmitted, Acquire = %v", err)
	}
	if c.Request() == h.Request() {
		t.Fatal("clone shares the request")
	}
	c.Request().Header[0] = "X-A: changed"
	if h.Request().Header[0] != "X-A: 1" {
		t.Fatal("clone aliased the header list")
	}
	// The clone's default sink is its own buffer.
	c.Request().Sink.Write([]byte("clone"))
	if string(c.Body()) != "clone" || len(h.Body()) != 0 {
		t.Fatal("clone sink not rebound to the clone's buffer")
	}
}

func TestHandleCloseInvalidates(t *testing.T) {
	h := transfer.New()
	h.Close()
	if h.Valid() {
		t.Fatal("closed handle still valid")
	}
	if err := h.SetURL("http://example.test/"); !errors.Is(err, api.ErrHandleInvalid) {
		t.Fatalf("setter on closed handle = %v, want ErrHandleInvalid", err)
	}
	if _, err := h.Acquire(); !errors.Is(err, api.ErrHandleInvalid) {
		t.Fatalf("Acquire on closed handle = %v, want ErrHandleInvalid", err)
	}
	if h.Request() != nil {
		t.Fatal("closed handle exposes a request")
	}
	h.Close() // idempotent
}

func TestHandleInfoGettersRequireCompletion(t *testing.T) {
	h := transfer.New()
	if _, err := h.StatusCode(); !errors.Is(err, api.ErrNotCompleted) {
		t.Fatalf("StatusCode before completion = %v, want ErrNotCompleted", err)
	}
	if _, err := h.TotalTime(); !errors.Is(err, api.ErrNotCompleted) {
		t.Fatalf("TotalTime before completion = %v, want ErrNotCompleted", err)
	}

	req := h.Request()
	req.Info = api.ResponseInfo{
		Completed:     true,
		StatusCode:    200,
		Proto:         "HTTP/1.1",
		Status:        "OK",
		ContentType:   "text/plain",
		ContentLength: 5,
		BytesReceived: 5,
		EffectiveURL:  "http://example.test/final",
		Headers:       []string{"Content-Type: text/plain"},
		Start:         time.Now().Add(-time.Second),
		Done:          time.Now(),
	}
	if code, err := h.StatusCode(); err != nil || code != 200 {
		t.Fatalf("StatusCode = %d / %v", code, err)
	}
	if ct, err := h.ContentType(); err != nil || ct != "text/plain" {
		t.Fatalf("ContentType = %q / %v", ct, err)
	}
	if cl, err := h.ContentLength(); err != nil || cl != 5 {
		t.Fatalf("ContentLength = %d / %v", cl, err)
	}
	if u, err := h.EffectiveURL(); err != nil || u != "http://example.test/final" {
		t.Fatalf("EffectiveURL = %q / %v", u, err)
	}
	if d, err := h.TotalTime(); err != nil || d <= 0 {
		t.Fatalf("TotalTime = %v / %v", d, err)
	}
}

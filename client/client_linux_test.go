// File: client/client_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end coverage: a real reactor loop, real sockets, canned
// loopback origins.

//go:build linux
// +build linux

package client_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/client"
	"github.com/momentics/hioload-fetch/multi"
	"github.com/momentics/hioload-fetch/transfer"
)

type echoedRequest struct {
	method  string
	target  string
	headers []string
	body    []byte
}

// origin runs a canned loopback server; handle gets the parsed request
// and the raw connection to answer on.
func origin(t *testing.T, handle func(c net.Conn, r *echoedRequest)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				br := bufio.NewReader(c)
				line, err := br.ReadString('\n')
				if err != nil {
					return
				}
				parts := strings.Fields(strings.TrimSpace(line))
				if len(parts) != 3 {
					return
				}
				r := &echoedRequest{method: parts[0], target: parts[1]}
				for {
					h, err := br.ReadString('\n')
					if err != nil {
						return
					}
					h = strings.TrimRight(h, "\r\n")
					if h == "" {
						break
					}
					r.headers = append(r.headers, h)
				}
				for _, h := range r.headers {
					k, v, ok := strings.Cut(h, ":")
					if ok && strings.EqualFold(strings.TrimSpace(k), "Content-Length") {
						n, _ := strconv.Atoi(strings.TrimSpace(v))
						r.body = make([]byte, n)
						io.ReadFull(br, r.body)
					}
				}
				handle(c, r)
			}(c)
		}
	}()
	return "http://" + ln.Addr().String()
}

func TestClientGetEndToEnd(t *testing.T) {
	base := origin(t, func(c net.Conn, r *echoedRequest) {
		io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 7\r\n\r\npayload")
	})
	c, err := client.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	h, err := c.Get(context.Background(), base+"/file")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer h.Close()
	if got := string(h.Body()); got != "payload" {
		t.Fatalf("body = %q", got)
	}
	if sc, err := h.StatusCode(); err != nil || sc != 200 {
		t.Fatalf("StatusCode = %d / %v", sc, err)
	}
	if ct, err := h.ContentType(); err != nil || ct != "text/plain" {
		t.Fatalf("ContentType = %q / %v", ct, err)
	}
}

func TestClientPostFormEndToEnd(t *testing.T) {
	seen := make(chan *echoedRequest, 1)
	base := origin(t, func(c net.Conn, r *echoedRequest) {
		seen <- r
		io.WriteString(c, "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n")
	})
	c, err := client.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	h, err := c.PostForm(context.Background(), base+"/form", []transfer.Pair{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	})
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	defer h.Close()
	if sc, _ := h.StatusCode(); sc != 201 {
		t.Fatalf("status = %d", sc)
	}
	r := <-seen
	if r.method != "POST" {
		t.Fatalf("method = %q", r.method)
	}
	if got := string(r.body); got != "a=1&b=2" {
		t.Fatalf("form body = %q", got)
	}
	ctOK := false
	for _, h := range r.headers {
		if h == "Content-Type: application/x-www-form-urlencoded" {
			ctOK = true
		}
	}
	if !ctOK {
		t.Fatalf("headers = %v, missing form content type", r.headers)
	}
}

func TestClientDownloadStreamsBody(t *testing.T) {
	payload := bytes.Repeat([]byte("data-block-"), 6000) // ~64KiB, spans reads
	base := origin(t, func(c net.Conn, r *echoedRequest) {
		fmt.Fprintf(c, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(payload))
		c.Write(payload)
	})
	c, err := client.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var out bytes.Buffer
	n, err := c.Download(context.Background(), base+"/blob", &out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len(payload)) || out.Len() != len(payload) {
		t.Fatalf("downloaded %d bytes into %d, want %d", n, out.Len(), len(payload))
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatal("downloaded bytes corrupted")
	}
}

func TestClientDefaultTimeoutApplies(t *testing.T) {
	base := origin(t, func(c net.Conn, r *echoedRequest) {
		// Hold the connection without answering.
		io.Copy(io.Discard, c)
	})
	c, err := client.New(client.WithDefaultTimeout(80 * time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	h := transfer.New()
	defer h.Close()
	h.SetURL(base + "/stalled")
	code, doErr := c.Do(context.Background(), h)
	if code != api.CodeTimeout || !errors.Is(doErr, api.CodeTimeout) {
		t.Fatalf("Do = %v / %v, want timeout", code, doErr)
	}
}

func TestClientRunsSubmissionsConcurrently(t *testing.T) {
	base := origin(t, func(c net.Conn, r *echoedRequest) {
		fmt.Fprintf(c, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(r.target), r.target)
	})
	c, err := client.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var handles []*transfer.Handle
	var ops []*multi.Operation
	for i := 0; i < 4; i++ {
		h := transfer.New()
		h.SetURL(fmt.Sprintf("%s/item/%d", base, i))
		op, err := c.Submit(h)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		handles = append(handles, h)
		ops = append(ops, op)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, op := range ops {
		if code, err := op.Wait(ctx); code != api.CodeOK || err != nil {
			t.Fatalf("transfer %d = %v / %v", i, code, err)
		}
	}
	for i, h := range handles {
		if got, want := string(h.Body()), fmt.Sprintf("/item/%d", i); got != want {
			t.Fatalf("body %d = %q, want %q", i, got, want)
		}
		h.Close()
	}
}

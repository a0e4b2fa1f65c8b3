// File: cmd/hlfetch/history_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *historyStore {
	t.Helper()
	s, err := openHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("openHistory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryRecordAndList(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	recs := []transferRecord{
		{URL: "http://a.test/", Method: "GET", Code: 0, Status: 200, Bytes: 100, Millis: 12},
		{URL: "http://b.test/", Method: "POST", Code: 0, Status: 201, Bytes: 5, Millis: 30},
		{URL: "http://c.test/", Method: "GET", Code: 10, Status: 0, Bytes: 0, Millis: 5000},
	}
	for i, r := range recs {
		r.At = time.Date(2026, 8, 20, 10, i, 0, 0, time.UTC)
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}

	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d rows, want 3", len(got))
	}
	// Newest first.
	if got[0].URL != "http://c.test/" || got[2].URL != "http://a.test/" {
		t.Fatalf("unexpected order: %q .. %q", got[0].URL, got[2].URL)
	}
	if got[0].Code != 10 || got[0].Millis != 5000 {
		t.Fatalf("row = %+v, want code 10 millis 5000", got[0])
	}
	if got[1].Status != 201 || got[1].Method != "POST" || got[1].Bytes != 5 {
		t.Fatalf("row = %+v", got[1])
	}
	if got[2].At.IsZero() {
		t.Fatal("timestamp not restored")
	}
}

func TestHistoryListHonorsLimit(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := transferRecord{URL: "http://x.test/", Method: "GET", At: time.Now()}
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d rows, want 2", len(got))
	}
}

func TestHistorySearchFiltersByURL(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()
	for _, u := range []string{
		"http://api.example.test/v1/users",
		"http://cdn.example.test/img.png",
		"http://api.example.test/v1/orders",
	} {
		if err := s.Record(ctx, transferRecord{URL: u, Method: "GET", At: time.Now()}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Search(ctx, "api.", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search matched %d rows, want 2", len(got))
	}
	for _, r := range got {
		if r.URL == "http://cdn.example.test/img.png" {
			t.Fatalf("search leaked non-matching row %q", r.URL)
		}
	}

	none, err := s.Search(ctx, "missing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("Search matched %d rows, want 0", len(none))
	}
}

func TestHistoryClear(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, transferRecord{URL: "http://x.test/", Method: "GET", At: time.Now()}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Fatalf("Clear removed %d rows, want 3", n)
	}
	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("store still holds %d rows after clear", len(got))
	}
}

func TestHistoryCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := openHistory(path)
	if err != nil {
		t.Fatalf("openHistory: %v", err)
	}
	defer s.Close()
	if err := s.Record(context.Background(), transferRecord{URL: "http://x.test/", Method: "GET", At: time.Now()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

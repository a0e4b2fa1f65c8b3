// File: cmd/hlfetch/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := defaultConfig()
	if cfg != want {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
	if !cfg.FollowRedirects || !cfg.Compressed || !cfg.History || !cfg.Progress {
		t.Fatalf("defaults should enable redirects, compression, history and progress: %+v", cfg)
	}
	if cfg.Parallel != 4 {
		t.Fatalf("default parallel = %d, want 4", cfg.Parallel)
	}
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
user_agent = "probe/2.0"
max_time = "45s"
connect_timeout = "1500ms"
follow_redirects = false
max_redirects = 5
compressed = false
parallel = 16
progress = false
history = false
history_path = "/tmp/hlfetch-test.db"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.UserAgent != "probe/2.0" {
		t.Fatalf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.MaxTime.Std() != 45*time.Second {
		t.Fatalf("MaxTime = %v, want 45s", cfg.MaxTime.Std())
	}
	if cfg.ConnectTimeout.Std() != 1500*time.Millisecond {
		t.Fatalf("ConnectTimeout = %v, want 1.5s", cfg.ConnectTimeout.Std())
	}
	if cfg.FollowRedirects || cfg.Compressed || cfg.Progress || cfg.History {
		t.Fatalf("boolean fields did not parse: %+v", cfg)
	}
	if cfg.MaxRedirects != 5 || cfg.Parallel != 16 {
		t.Fatalf("numeric fields did not parse: %+v", cfg)
	}
	if cfg.HistoryPath != "/tmp/hlfetch-test.db" {
		t.Fatalf("HistoryPath = %q", cfg.HistoryPath)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`user_agent = "tiny/1.0"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.UserAgent != "tiny/1.0" {
		t.Fatalf("UserAgent = %q", cfg.UserAgent)
	}
	if !cfg.FollowRedirects || cfg.Parallel != 4 {
		t.Fatalf("unset keys should keep defaults: %+v", cfg)
	}
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_time = \"not a duration\""), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("loadConfig accepted a malformed duration")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got := expandHome("~/data/history.db")
	want := filepath.Join(home, "data", "history.db")
	if got != want {
		t.Fatalf("expandHome = %q, want %q", got, want)
	}
	if expandHome("/abs/path.db") != "/abs/path.db" {
		t.Fatal("absolute path must pass through untouched")
	}
	if expandHome("~") != home {
		t.Fatalf("expandHome(~) = %q, want %q", expandHome("~"), home)
	}
}

// File: cmd/hlfetch/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Optional TOML configuration at ~/.config/hlfetch/config.toml. A missing
// file yields the built-in defaults; a malformed one is an error. Command
// line flags always win over the file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration parses TOML string values like "30s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config mirrors the config.toml layout.
type Config struct {
	UserAgent       string   `toml:"user_agent"`       // default User-Agent header
	MaxTime         Duration `toml:"max_time"`         // whole-transfer deadline, 0 = none
	ConnectTimeout  Duration `toml:"connect_timeout"`  // per-connect deadline, 0 = built-in
	FollowRedirects bool     `toml:"follow_redirects"` // follow 3xx responses
	MaxRedirects    int      `toml:"max_redirects"`    // redirect cap, 0 = built-in
	Compressed      bool     `toml:"compressed"`       // request gzip/deflate bodies
	Parallel        int      `toml:"parallel"`         // concurrent transfer cap
	Progress        bool     `toml:"progress"`         // render progress output
	History         bool     `toml:"history"`          // record transfers to the history store
	HistoryPath     string   `toml:"history_path"`     // sqlite file, "" = default location
}

func defaultConfig() Config {
	return Config{
		FollowRedirects: true,
		Compressed:      true,
		Parallel:        4,
		Progress:        true,
		History:         true,
	}
}

// defaultConfigPath is ~/.config/hlfetch/config.toml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hlfetch", "config.toml")
}

// defaultHistoryPath is ~/.local/share/hlfetch/history.db.
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "hlfetch", "history.db")
}

// loadConfig reads path, falling back to defaults when the file does not
// exist. An empty path means the default location.
func loadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.HistoryPath != "" {
		cfg.HistoryPath = expandHome(cfg.HistoryPath)
	}
	return cfg, nil
}

// expandHome rewrites a leading "~/" to the user home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

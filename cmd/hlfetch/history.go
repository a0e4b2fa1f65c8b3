// File: cmd/hlfetch/history.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Local transfer history in a SQLite file. Every completed fetch is
// recorded unless history is disabled; "hlfetch history" lists, searches
// and clears the store.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS transfers (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	url    TEXT    NOT NULL,
	method TEXT    NOT NULL,
	code   INTEGER NOT NULL,
	status INTEGER NOT NULL,
	bytes  INTEGER NOT NULL,
	millis INTEGER NOT NULL,
	at     TEXT    NOT NULL
);`

// transferRecord is one row of the history store.
type transferRecord struct {
	URL    string
	Method string
	Code   int
	Status int
	Bytes  int64
	Millis int64
	At     time.Time
}

type historyStore struct {
	db *sql.DB
}

// openHistory opens (and if needed creates) the history database at path.
func openHistory(path string) (*historyStore, error) {
	if path == "" {
		path = defaultHistoryPath()
	}
	if path == "" {
		return nil, fmt.Errorf("no history path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing history schema: %w", err)
	}
	return &historyStore{db: db}, nil
}

func (s *historyStore) Close() error {
	return s.db.Close()
}

// Record inserts one completed transfer.
func (s *historyStore) Record(ctx context.Context, rec transferRecord) error {
	const q = `INSERT INTO transfers (url, method, code, status, bytes, millis, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		rec.URL, rec.Method, rec.Code, rec.Status, rec.Bytes, rec.Millis,
		rec.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}
	return nil
}

// List returns the most recent transfers, newest first.
func (s *historyStore) List(ctx context.Context, limit int) ([]transferRecord, error) {
	const q = `SELECT url, method, code, status, bytes, millis, at
		FROM transfers ORDER BY id DESC LIMIT ?`
	return s.query(ctx, q, limit)
}

// Search returns the most recent transfers whose URL contains term.
func (s *historyStore) Search(ctx context.Context, term string, limit int) ([]transferRecord, error) {
	const q = `SELECT url, method, code, status, bytes, millis, at
		FROM transfers WHERE url LIKE '%' || ? || '%' ORDER BY id DESC LIMIT ?`
	return s.query(ctx, q, term, limit)
}

// Clear deletes all rows and reports how many were removed.
func (s *historyStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfers`)
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}
	return n, nil
}

func (s *historyStore) query(ctx context.Context, q string, args ...any) ([]transferRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	var out []transferRecord
	for rows.Next() {
		var rec transferRecord
		var at string
		if err := rows.Scan(&rec.URL, &rec.Method, &rec.Code, &rec.Status,
			&rec.Bytes, &rec.Millis, &at); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			rec.At = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}
	return out, nil
}

// newHistoryCmd builds the "history" command group.
func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	open := func() (*historyStore, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return openHistory(cfg.HistoryPath)
	}

	printRecords := func(cmd *cobra.Command, recs []transferRecord) {
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "history is empty")
			return
		}
		for _, r := range recs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-4s %3d  code=%-2d %8d bytes %6d ms  %s\n",
				r.At.Local().Format("2006-01-02 15:04:05"),
				r.Method, r.Status, r.Code, r.Bytes, r.Millis, r.URL)
		}
	}

	root := &cobra.Command{
		Use:   "history",
		Short: "Inspect the local transfer history",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/hlfetch/config.toml)")
	root.PersistentFlags().IntVar(&limit, "limit", 20, "maximum number of rows to print")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent transfers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			recs, err := s.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRecords(cmd, recs)
			return nil
		},
	}

	search := &cobra.Command{
		Use:   "search TERM",
		Short: "List recent transfers whose URL contains TERM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			recs, err := s.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printRecords(cmd, recs)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d transfers\n", n)
			return nil
		},
	}

	root.AddCommand(list, search, clear)
	return root
}

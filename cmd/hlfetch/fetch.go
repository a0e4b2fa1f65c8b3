// File: cmd/hlfetch/fetch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Root command: fetch one or many URLs concurrently through a single
// client. Bodies go to stdout, a file or nowhere; progress renders on
// stderr; completed transfers land in the history store.

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-fetch/api"
	"github.com/momentics/hioload-fetch/client"
	"github.com/momentics/hioload-fetch/multi"
	"github.com/momentics/hioload-fetch/transfer"
)

type fetchFlags struct {
	configPath string
	method     string
	headers    []string
	data       string
	form       []string
	output     string
	discard    bool
	maxTime    time.Duration
	connectTO  time.Duration
	location   bool
	maxRedirs  int
	userAgent  string
	compressed bool
	parallel   int
	progress   bool
	noProgress bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	f := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "hlfetch [flags] URL...",
		Short: "Fetch URLs over HTTP through an event-loop transfer engine",
		Long: `hlfetch runs HTTP transfers on a single epoll reactor. One URL streams
its body to stdout or a file; several URLs run concurrently and print a
summary line each. Defaults come from ~/.config/hlfetch/config.toml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runFetch(cmd, args, f)
		},
	}

	bindFetchFlags(cmd, f)
	cmd.AddCommand(newHistoryCmd(), newVersionCmd())
	return cmd
}

func bindFetchFlags(cmd *cobra.Command, f *fetchFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "config file (default ~/.config/hlfetch/config.toml)")
	flags.StringVarP(&f.method, "method", "X", "", "request method (default GET, or POST with a body)")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, `extra header line, e.g. "Accept: text/html" (repeatable)`)
	flags.StringVarP(&f.data, "data", "d", "", "request body; implies POST unless -X is given")
	flags.StringArrayVar(&f.form, "form", nil, "form field key=value; implies POST (repeatable)")
	flags.StringVarP(&f.output, "output", "o", "", `write the body to this file, "-" for stdout (single URL)`)
	flags.BoolVar(&f.discard, "discard", false, "discard response bodies")
	flags.DurationVarP(&f.maxTime, "max-time", "m", 0, "whole-transfer deadline, e.g. 30s (0 = none)")
	flags.DurationVar(&f.connectTO, "connect-timeout", 0, "connect deadline, e.g. 5s (0 = built-in)")
	flags.BoolVarP(&f.location, "location", "L", true, "follow 3xx redirects")
	flags.IntVar(&f.maxRedirs, "max-redirs", 0, "redirect cap (0 = built-in)")
	flags.StringVarP(&f.userAgent, "user-agent", "A", "", "User-Agent header value")
	flags.BoolVar(&f.compressed, "compressed", true, "request gzip/deflate response bodies")
	flags.IntVarP(&f.parallel, "parallel", "P", 0, "maximum concurrent transfers (0 = config default)")
	flags.BoolVar(&f.progress, "progress", true, "render progress on stderr")
	flags.BoolVar(&f.noProgress, "no-progress", false, "disable progress output")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log transfer activity to stderr")
}

// job tracks one URL from handle construction to completion.
type job struct {
	url    string
	handle *transfer.Handle
	file   *os.File
	op     *multi.Operation
	code   api.Code
	err    error
}

func runFetch(cmd *cobra.Command, urls []string, f *fetchFlags) error {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	mergeConfig(cmd, f, cfg)

	if f.output != "" && len(urls) > 1 {
		return fmt.Errorf("-o/--output takes exactly one URL, got %d", len(urls))
	}
	if f.data != "" && len(f.form) > 0 {
		return fmt.Errorf("--data and --form are mutually exclusive")
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	showProgress := f.progress && !f.noProgress

	cl, err := newClient(f, errOut)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *historyStore
	if cfg.History {
		store, err = openHistory(cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(errOut, "hlfetch: history disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	jobs := make([]*job, 0, len(urls))
	defer func() {
		for _, j := range jobs {
			j.handle.Close()
			if j.file != nil {
				j.file.Close()
			}
		}
	}()

	var bar *progressbar.ProgressBar
	for _, u := range urls {
		j := &job{url: u}
		sink, file, err := openSink(urls, f, out)
		if err != nil {
			return err
		}
		j.file = file
		if len(urls) == 1 && showProgress {
			bar = byteBar(errOut, u)
			sink = io.MultiWriter(sink, bar)
		}
		j.handle, err = buildHandle(u, f, sink)
		if err != nil {
			if file != nil {
				file.Close()
			}
			return fmt.Errorf("%s: %w", u, err)
		}
		jobs = append(jobs, j)
	}
	if len(urls) > 1 && showProgress {
		bar = countBar(errOut, len(urls))
	}

	for _, j := range jobs {
		op, err := cl.Submit(j.handle)
		if err != nil {
			j.code, j.err = api.CodeOf(err), err
			continue
		}
		j.op = op
	}

	exit := api.CodeOK
	for _, j := range jobs {
		if j.op != nil {
			j.code, j.err = j.op.Wait(ctx)
		}
		if len(urls) > 1 && bar != nil {
			bar.Add(1)
		}
		summarize(errOut, j, len(urls) > 1 || f.verbose)
		recordJob(cmd, store, j)
		if j.code != api.CodeOK && exit == api.CodeOK {
			exit = j.code
		}
	}
	if len(urls) == 1 && bar != nil {
		bar.Finish()
	}

	if exit != api.CodeOK {
		return &exitCodeError{code: int(exit)}
	}
	return nil
}

// mergeConfig fills in every flag the user did not set from the config
// file; explicit flags always win.
func mergeConfig(cmd *cobra.Command, f *fetchFlags, cfg Config) {
	changed := cmd.Flags().Changed
	if !changed("user-agent") && cfg.UserAgent != "" {
		f.userAgent = cfg.UserAgent
	}
	if !changed("max-time") {
		f.maxTime = cfg.MaxTime.Std()
	}
	if !changed("connect-timeout") {
		f.connectTO = cfg.ConnectTimeout.Std()
	}
	if !changed("location") {
		f.location = cfg.FollowRedirects
	}
	if !changed("max-redirs") {
		f.maxRedirs = cfg.MaxRedirects
	}
	if !changed("compressed") {
		f.compressed = cfg.Compressed
	}
	if !changed("parallel") {
		f.parallel = cfg.Parallel
	}
	if !changed("progress") {
		f.progress = cfg.Progress
	}
}

func newClient(f *fetchFlags, errOut io.Writer) (*client.Client, error) {
	opts := []client.Option{
		client.WithFollowRedirects(f.location),
		client.WithAcceptEncoding(f.compressed),
	}
	if f.userAgent != "" {
		opts = append(opts, client.WithUserAgent(f.userAgent))
	}
	if f.maxTime > 0 {
		opts = append(opts, client.WithDefaultTimeout(f.maxTime))
	}
	if f.connectTO > 0 {
		opts = append(opts, client.WithConnectTimeout(f.connectTO))
	}
	if f.maxRedirs > 0 {
		opts = append(opts, client.WithMaxRedirects(f.maxRedirs))
	}
	if f.parallel > 0 {
		opts = append(opts, client.WithMaxConcurrent(f.parallel))
	}
	if f.verbose {
		opts = append(opts, client.WithLogger(log.New(errOut, "", log.LstdFlags)))
	}
	return client.New(opts...)
}

// openSink picks where a body goes. Several URLs always discard; one
// URL streams to stdout unless -o names a file or --discard is set.
func openSink(urls []string, f *fetchFlags, out io.Writer) (io.Writer, *os.File, error) {
	if f.discard || len(urls) > 1 {
		return io.Discard, nil, nil
	}
	if f.output == "" || f.output == "-" {
		return out, nil, nil
	}
	file, err := os.Create(f.output)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", f.output, err)
	}
	return file, file, nil
}

func buildHandle(rawURL string, f *fetchFlags, sink io.Writer) (*transfer.Handle, error) {
	h := transfer.New()
	if err := h.SetURL(rawURL); err != nil {
		h.Close()
		return nil, err
	}
	if f.method != "" {
		if err := h.SetMethod(f.method); err != nil {
			h.Close()
			return nil, err
		}
	}
	for _, line := range f.headers {
		if !h.AddHeaderLine(line) {
			h.Close()
			return nil, fmt.Errorf("malformed header line %q", line)
		}
	}
	if f.data != "" {
		if err := h.SetBody([]byte(f.data)); err != nil {
			h.Close()
			return nil, err
		}
	}
	if len(f.form) > 0 {
		pairs := make([]transfer.Pair, 0, len(f.form))
		for _, kv := range f.form {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				h.Close()
				return nil, fmt.Errorf("malformed form field %q (want key=value)", kv)
			}
			pairs = append(pairs, transfer.Pair{Key: k, Value: v})
		}
		if err := h.SetForm(pairs); err != nil {
			h.Close()
			return nil, err
		}
	}
	if f.verbose {
		if err := h.SetVerbose(true); err != nil {
			h.Close()
			return nil, err
		}
	}
	if err := h.SinkWriter(sink); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// byteBar renders streamed bytes for a single transfer of unknown size.
func byteBar(w io.Writer, url string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(shortURL(url)),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// countBar counts finished transfers when fetching several URLs.
func countBar(w io.Writer, n int) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("fetching %d urls", n)),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// shortURL trims the scheme so bar descriptions stay readable.
func shortURL(u string) string {
	s := strings.TrimPrefix(u, "http://")
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}

// summarize prints one completion line. Single quiet fetches stay
// silent on success, matching what a pipeline consumer expects.
func summarize(w io.Writer, j *job, always bool) {
	if j.err != nil {
		fmt.Fprintf(w, "hlfetch: %s: %v\n", j.url, j.err)
		return
	}
	if !always {
		return
	}
	status, _ := j.handle.StatusCode()
	bytes, _ := j.handle.BytesReceived()
	elapsed, _ := j.handle.TotalTime()
	fmt.Fprintf(w, "%3d  %s  %d bytes in %s\n",
		status, j.url, bytes, elapsed.Round(time.Millisecond))
}

// recordJob appends the finished transfer to the history store, if any.
func recordJob(cmd *cobra.Command, store *historyStore, j *job) {
	if store == nil {
		return
	}
	rec := transferRecord{
		URL:    j.url,
		Method: j.handle.Request().Method,
		Code:   int(j.code),
		At:     time.Now(),
	}
	if status, err := j.handle.StatusCode(); err == nil {
		rec.Status = status
	}
	if n, err := j.handle.BytesReceived(); err == nil {
		rec.Bytes = n
	}
	if d, err := j.handle.TotalTime(); err == nil {
		rec.Millis = d.Milliseconds()
	}
	if err := store.Record(cmd.Context(), rec); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "hlfetch: %v\n", err)
	}
}

// File: cmd/hlfetch/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hlfetch is the command-line front end of the transfer stack: fetch one
// or many URLs concurrently through a single driver, with a config file,
// progress output and a local transfer history.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command tree and maps the outcome to a process exit
// code: 0 when every transfer succeeded, the first non-OK transfer code
// otherwise, 1 for usage and setup errors.
func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			return ec.code
		}
		fmt.Fprintln(os.Stderr, "hlfetch:", err)
		return 1
	}
	return 0
}

// exitCodeError carries a transfer result code through cobra's error
// return without printing anything; summaries were already written.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hlfetch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hlfetch %s\n", version)
		},
	}
}

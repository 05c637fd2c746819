// Package main provides the h5iterate command, which lists the members of
// a group in an HDF5 file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
)

// errReported marks an error already logged as a diagnostic.
var errReported = errors.New("diagnostics reported")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			_, _ = fmt.Fprintln(stderr, "h5iterate:", err)
		}
		return exitFailure
	}
	return exitSuccess
}

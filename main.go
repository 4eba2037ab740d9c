// Package main is the entry point for the jarvis voice loop.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zjrosen/jarvis-voice/cmd"
	"github.com/zjrosen/jarvis-voice/internal/preflight"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	cmd.SetVersion(versionString)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var failure *preflight.StartupFailure
		if errors.As(err, &failure) {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, failure.Guidance())
		}
		os.Exit(1)
	}
}

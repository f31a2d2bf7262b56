package main

import (
	"fmt"
	"os"

	"github.com/helix-kb/helixd/internal/cmd"
)

// Overridden at build time via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "helixd: %v\n", err)
		os.Exit(1)
	}
}

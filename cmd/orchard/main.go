package main

import (
	"os"

	"github.com/orchard-dev/orchard/internal/cli"
)

// Build metadata injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		os.Exit(1)
	}
}

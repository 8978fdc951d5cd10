package main

import (
	"os"

	"github.com/e7canasta/orion-ticket-capture/cmd/ticketcap/commands"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors have already been printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

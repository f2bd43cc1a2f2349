// Package main is the entry point for the flyk3s CLI.
//
// flyk3s provisions and maintains k3s clusters on Fly.io Machines. One
// cluster is described by a configuration directory; the tool creates the
// control plane and worker node groups as Fly apps, machines, and volumes,
// and exposes day-two operations (taint, list, console, credentials).
//
// For usage information, run:
//
//	flyk3s --help
package main

import (
	"fmt"
	"os"

	"github.com/flyk3s/flyk3s/cmd/flyk3s/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main provides the entry point for the newsrack CLI tool.
package main

import (
	"github.com/mpetitjean/newsrack/cmd/newsrack/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}

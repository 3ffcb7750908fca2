// Package main is the entry point for the worktrack CLI.
// The CLI is the terminal tool for controlling a running worktrack daemon.
package main

import (
	"os"

	"worktrack/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

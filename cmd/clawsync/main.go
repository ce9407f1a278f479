// Package main provides the entry point for the clawsync CLI.
package main

import (
	"os"

	"github.com/liteclaw/clawsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

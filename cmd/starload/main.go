// Package main is the entry point for the starload CLI.
package main

import (
	"os"

	"github.com/loamworks/starload/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the mediaforge application.
package main

import (
	"os"

	"github.com/mediaforge/mediaforge/cmd/mediaforge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

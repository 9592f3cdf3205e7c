// Package main provides the entry point for the patrag CLI.
package main

import (
	"os"

	"github.com/patrag/patrag/cmd/patrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

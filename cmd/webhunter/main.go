// Package main is the entry point for webhunter.
package main

import (
	"os"

	"github.com/webhunter-dev/webhunter/cmd/webhunter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

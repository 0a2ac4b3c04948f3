// Package main is the free-rider-o-meter server and command-line entry point.
package main

import (
	"fmt"
	"os"
)

// Linker flags override these at release time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

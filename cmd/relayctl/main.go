// Package main implements relayctl, an operator and developer CLI for the relay.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

//go:build unix

// Command eventfd allocates eventfd descriptors, and runs a TCP server whose
// shutdown is signalled through an eventfd.
//
// Usage:
//
//	eventfd create [--count N]
//	eventfd serve [--addr HOST:PORT] [--accept-rate N] [--read-timeout D] [--pipe]
//	eventfd send --addr HOST:PORT MESSAGE...
//	eventfd demo
//
// Every flag may also be set via the environment (e.g. EVENTFD_ADDR), or a
// config file (--config).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

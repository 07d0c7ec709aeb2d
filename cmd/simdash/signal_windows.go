//go:build windows

package main

import "os"

// Windows has no SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}

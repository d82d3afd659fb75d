// Unix/Darwin signal handling for interrupting watch mode and long git calls.

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// shutdownSignals are the signals that cancel the run context: SIGINT
// (Ctrl+C) and SIGTERM from CI runners and process managers.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// signalChannel returns a buffered channel that receives the shutdown
// signals. The buffer of 1 keeps a signal from being lost while the
// receiver is busy.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)
	return ch
}

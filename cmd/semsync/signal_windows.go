// Windows signal handling. Windows has no SIGTERM, so only os.Interrupt
// (Ctrl+C, CTRL_BREAK_EVENT, console close) is registered.

//go:build windows

package main

import (
	"os"
	"os/signal"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// shutdownSignals are the signals that cancel the run context.
var shutdownSignals = []os.Signal{os.Interrupt}

// signalChannel returns a buffered channel that receives os.Interrupt.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)
	return ch
}

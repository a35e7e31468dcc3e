package main

import (
	"os/signal"
	"syscall"
)

// signalIgnoreSIGPIPE prevents a client that closes its read side
// mid-write from killing the process outright, per spec.md section
// 6's transport note: a broken pipe surfaces as a write error, which
// the session logs, rather than as a signal-terminated process.
func signalIgnoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}

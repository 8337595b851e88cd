package app

import (
	"os"
	"syscall"
)

// StopReason is used for structured shutdown tracing.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopTickOnce   StopReason = "tick_once"
)

// StopReasonFor maps a received signal to its StopReason.
func StopReasonFor(sig os.Signal) StopReason {
	switch sig {
	case os.Interrupt:
		return StopSIGINT
	case syscall.SIGTERM:
		return StopSIGTERM
	}
	return StopUnknown
}

package server

import (
	"io"
	"log"
	"os"
)

// debugLog is discarded unless debug logging is enabled. Operator-facing
// chat output (messages, enter/leave notices) goes through chatLog on
// stdout so it stays separate from diagnostics on stderr.
var (
	debugLog = log.New(io.Discard, "", log.LstdFlags|log.Lmicroseconds)
	chatLog  = log.New(os.Stdout, "", 0)
)

// EnableDebugLogging turns on verbose logging to stderr.
func EnableDebugLogging() {
	debugLog.SetOutput(os.Stderr)
}

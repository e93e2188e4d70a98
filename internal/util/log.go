// Package util holds the client's logging and session statistics. Log lines
// go through pterm's shared logger, which the CLI points at stderr so they
// never interleave with the chat transcript on stdout. WebRTC internals are
// routed onto the same logger by PionLoggerFactory.
package util

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled helpers. Trace carries pion's debug output and is only shown with
// EnableTrace.

func LogTrace(format string, args ...interface{}) {
	pterm.DefaultLogger.Trace(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// EnableTrace configures the logger to show everything, pion internals included.
func EnableTrace() {
	pterm.DefaultLogger.Level = pterm.LogLevelTrace
}

// SetOutput redirects log lines, e.g. to stderr so they do not interleave
// with chat on stdout.
func SetOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}

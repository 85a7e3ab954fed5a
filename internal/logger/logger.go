// Package logger provides verbose logging for the autorfp CLI and server.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to trace workflow steps and agent calls.
// Error is always printed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	verbose    bool
	timestamps bool
	output     io.Writer = os.Stderr
)

// now is the clock used for timestamps.
var now = time.Now

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetTimestamps prefixes every line with the wall-clock time. Long-running
// commands turn this on.
func SetTimestamps(on bool) {
	mu.Lock()
	defer mu.Unlock()
	timestamps = on
}

// SetOutput sets the output writer for verbose logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// logf writes one line. Writers are serialised so lines never interleave.
func logf(level Level, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose && level != LevelError {
		return
	}
	line := fmt.Sprintf(format, args...)
	if timestamps {
		fmt.Fprintf(output, "%s [%s] %s%s\n", now().Format("15:04:05.000"), level, prefix, line)
		return
	}
	fmt.Fprintf(output, "[%s] %s%s\n", level, prefix, line)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) { logf(LevelDebug, "", format, args...) }

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) { logf(LevelInfo, "", format, args...) }

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) { logf(LevelWarn, "", format, args...) }

// Error prints an error message regardless of verbose mode.
func Error(format string, args ...any) { logf(LevelError, "", format, args...) }

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Scoped prefixes every message with the subject it concerns.
type Scoped struct {
	prefix string
}

// Workflow returns a logger for messages about one workflow.
func Workflow(id string) Scoped {
	return Scoped{prefix: "workflow " + id + ": "}
}

// Debug prints a scoped message if verbose mode is enabled.
func (s Scoped) Debug(format string, args ...any) { logf(LevelDebug, s.prefix, format, args...) }

// Info prints a scoped message if verbose mode is enabled.
func (s Scoped) Info(format string, args ...any) { logf(LevelInfo, s.prefix, format, args...) }

// Warn prints a scoped warning if verbose mode is enabled.
func (s Scoped) Warn(format string, args ...any) { logf(LevelWarn, s.prefix, format, args...) }

// Error prints a scoped error regardless of verbose mode.
func (s Scoped) Error(format string, args ...any) { logf(LevelError, s.prefix, format, args...) }

// Package logger provides logging for the sercha-mirror CLI and engine.
//
// The printf helpers print only in verbose mode and are meant for the CLI.
// Services log structured key/values through Default().
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	color   bool
	def     = newSlog(os.Stderr, false, false)
)

func newSlog(w io.Writer, v, c bool) *slog.Logger {
	level := slog.LevelInfo
	if v {
		level = slog.LevelDebug
	}
	return slog.New(clog.New(
		clog.WithWriter(w),
		clog.WithLevel(level),
		clog.WithColor(c),
	))
}

// SetVerbose enables or disables verbose logging.
// In verbose mode Default() also emits debug records.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	def = newSlog(output, verbose, color)
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	def = newSlog(output, verbose, color)
}

// SetColor enables colored structured output, typically when stderr is a terminal.
func SetColor(c bool) {
	mu.Lock()
	defer mu.Unlock()
	color = c
	def = newSlog(output, verbose, color)
}

// Default returns the structured logger.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return def
}

// ErrAttr returns the attributes describing err, including goerr values.
func ErrAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	var ge *goerr.Error
	if errors.As(err, &ge) && len(ge.Values()) > 0 {
		return slog.Group("error", slog.String("message", err.Error()), slog.Any("values", ge.Values()))
	}
	return slog.String("error", err.Error())
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "[DEBUG] "+format+"\n", args...)
	}
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Package logging configures the process-wide slog logger. All diagnostics go
// to stderr; stdout is reserved for command output and the daemon readiness
// handshake.
package logging

import (
	"log/slog"
	"os"
)

// Init installs a stderr text handler. Debug-level records are emitted only
// when MCPC_DEBUG is set to a non-empty value other than "0" or "false".
func Init() *slog.Logger {
	level := slog.LevelWarn
	if Debug() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Debug reports whether diagnostic logging is enabled.
func Debug() bool {
	switch os.Getenv("MCPC_DEBUG") {
	case "", "0", "false":
		return false
	}
	return true
}

// With returns the default logger annotated with a component attribute.
func With(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

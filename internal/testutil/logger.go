package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
// Use it in tests to silence components that log progress.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

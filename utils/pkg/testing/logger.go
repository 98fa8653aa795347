package curatetesting

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// NewLogger returns a debug logger for tests. Output is discarded unless
// CURATOR_TEST_DEBUG is set.
func NewLogger() *slog.Logger {
	if os.Getenv("CURATOR_TEST_DEBUG") == "" {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelDebug}))
}

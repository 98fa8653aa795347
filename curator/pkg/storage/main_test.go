package storage

import (
	"log/slog"

	curatetesting "github.com/malbeclabs/curate/utils/pkg/testing"
)

func testLogger() *slog.Logger {
	return curatetesting.NewLogger()
}

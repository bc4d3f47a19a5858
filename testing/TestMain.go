// Package testing holds shared test setup. Importing it switches the process
// into test mode and defaults the slot driver to memory.
package testing

import (
	"io"
	"log/slog"
	"os"
	"sync"
	stdtesting "testing"
	"time"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PROCUREDESK_TEST_MODE", "1")
		if os.Getenv("SLOT_DRIVER") == "" {
			_ = os.Setenv("SLOT_DRIVER", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FixedClock returns a clock frozen at at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

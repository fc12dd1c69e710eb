package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before they open Postgres or Redis
// connections. Package tests set it through the testing helper.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// parseTestMode accepts anything strconv.ParseBool does. Unset or malformed
// values leave test mode off.
func parseTestMode(value string) bool {
	on, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && on
}

// InTestMode reports whether runtime startup should be skipped. The
// environment is read on first use and cached.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads TestModeEnv after a test changed it.
func RefreshTestMode() {
	testMode.on.Store(parseTestMode(os.Getenv(TestModeEnv)))
}

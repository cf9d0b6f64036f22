package app

import (
	"os"
	"strconv"
	"strings"
)

// TestModeEnv switches the binaries into test mode. Test mode accepts any
// value strconv.ParseBool treats as true.
const TestModeEnv = "AUTOPARTS_TEST_MODE"

// InTestMode reports whether binaries should return before opening
// connections or listeners.
func InTestMode() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(TestModeEnv)))
	return err == nil && on
}

package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(on)
}

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the queue. Any true value of ODYSSEY_TEST_MODE enables it.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment, for tests that change it.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}

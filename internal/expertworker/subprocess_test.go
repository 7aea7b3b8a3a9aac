package expertworker

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubprocessWorker_Invoke_EchoesStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("cat is not available on windows runners")
	}
	w := NewSubprocessWorker("cat-echo", "cat")
	out, err := w.Invoke(context.Background(), "hello expert", "", nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "hello expert", out)
}

func TestSubprocessWorker_Invoke_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh is not available on windows runners")
	}
	w := NewSubprocessWorker("failer", "sh", "-c", "echo boom 1>&2; exit 1")
	_, err := w.Invoke(context.Background(), "", "", nil, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSubprocessWorker_Invoke_DeadlineExceeded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sleep is not available on windows runners")
	}
	w := NewSubprocessWorker("sleeper", "sleep", "5")
	deadline := time.Now().Add(20 * time.Millisecond)
	_, err := w.Invoke(context.Background(), "", "", nil, deadline)
	require.Error(t, err)
}

func TestClassifyStderr(t *testing.T) {
	cases := map[string]string{
		"Error: rate limit exceeded, try later": "rate_limit",
		"401 Unauthorized: invalid api key":     "auth",
		"connection refused":                    "network",
		"request timed out":                     "timeout",
		"500 Internal Server Error":              "transient_5xx",
		"completely unrelated text":              "unknown",
	}
	for msg, want := range cases {
		assert.Equal(t, want, string(classifyStderr(msg)), msg)
	}
}

package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 1*time.Second, p.InitialDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.Equal(t, 0.1, p.JitterFraction)
}

func TestCalculateBackoff_MonotoneUntilCap(t *testing.T) {
	p := Policy{
		MaxRetries:        5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}

	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, CalculateBackoff(tc.attempt, p))
	}
}

func TestExecute_SuccessOnFirstAttempt(t *testing.T) {
	c := New(nil)
	attempts := 0
	result, err := Execute(context.Background(), c, DefaultPolicy(), nil, func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
	assert.EqualValues(t, 1, c.Stats().Snapshot().Successes)
}

func TestExecute_SuccessAfterRetries(t *testing.T) {
	c := New(nil)
	policy := Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2, JitterFraction: 0}
	var attempts int32
	result, err := Execute(context.Background(), c, policy, nil, func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return "", &Classified{Kind: KindNetwork, Err: errors.New("connection refused")}
		}
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.EqualValues(t, 3, attempts)
	snap := c.Stats().Snapshot()
	assert.EqualValues(t, 2, snap.RetriesByKind[KindNetwork])
}

func TestExecute_RetryExhausted(t *testing.T) {
	c := New(nil)
	policy := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
	var attempts int32
	_, err := Execute(context.Background(), c, policy, nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", &Classified{Kind: KindTransient5xx, Err: errors.New("server error")}
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry exhausted")
	assert.EqualValues(t, 3, attempts) // 1 initial + 2 retries
}

func TestExecute_NonRetryableError(t *testing.T) {
	c := New(nil)
	var attempts int32
	_, err := Execute(context.Background(), c, DefaultPolicy(), nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", &Classified{Kind: KindAuth, Err: errors.New("bad credentials")}
	})
	assert.Error(t, err)
	assert.EqualValues(t, 1, attempts)
}

func TestExecute_RateLimitHonorsRetryAfterHint(t *testing.T) {
	c := New(nil)
	policy := Policy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}
	var events []Event
	sink := func(e Event) { events = append(events, e) }

	attempt := 0
	_, _ = Execute(context.Background(), c, policy, sink, func(ctx context.Context) (string, error) {
		attempt++
		if attempt == 1 {
			return "", &Classified{Kind: KindRateLimit, Err: errors.New("rate limited"), RetryAfter: 20 * time.Millisecond}
		}
		return "ok", nil
	})

	var sawRetry bool
	for _, e := range events {
		if e.Type == "retry" {
			sawRetry = true
			assert.GreaterOrEqual(t, e.Delay, 20*time.Millisecond)
		}
	}
	assert.True(t, sawRetry)
}

func TestExecute_ContextCancelledBeforeStart(t *testing.T) {
	c := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, c, DefaultPolicy(), nil, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	assert.Error(t, err)
}

func TestExecute_OverallDeadlineStopsRetries(t *testing.T) {
	c := New(nil)
	policy := Policy{
		MaxRetries:        100,
		InitialDelay:      20 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffMultiplier: 1,
		OverallDeadline:   50 * time.Millisecond,
	}
	var attempts int32
	_, err := Execute(context.Background(), c, policy, nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", &Classified{Kind: KindNetwork, Err: errors.New("down")}
	})
	assert.Error(t, err)
	assert.Less(t, int(attempts), 100)
}

func TestJitter_DistributionIsUniformAcrossSamples(t *testing.T) {
	delay := 10 * time.Second
	seen := map[time.Duration]struct{}{}
	var minV, maxV time.Duration = delay, 0
	for i := 0; i < 200; i++ {
		d := jitter(delay, 0.2)
		seen[d] = struct{}{}
		if d < minV {
			minV = d
		}
		if d > maxV {
			maxV = d
		}
	}
	assert.Greater(t, len(seen), 1, "jitter should not collapse to a single value")
	theoreticalRange := float64(delay) * 0.2
	observedRange := float64(maxV - minV)
	assert.GreaterOrEqual(t, observedRange, theoreticalRange*0.5)
}

func TestJitter_ZeroFractionIsIdentity(t *testing.T) {
	assert.Equal(t, 10*time.Second, jitter(10*time.Second, 0))
}

func TestClassify_UnclassifiedErrorDefaultsUnknownRetriable(t *testing.T) {
	kind, _ := Classify(errors.New("boom"))
	assert.Equal(t, KindUnknown, kind)
	assert.True(t, kind.retriable())
}

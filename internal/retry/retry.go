// Package retry wraps external calls with classified retries:
// exponential backoff capped at a maximum delay, uniform jitter drawn
// from crypto/rand so concurrent clients do not synchronize, and an
// error taxonomy that separates transient failures (retried) from
// permanent ones (surfaced immediately).
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/cerrors"
)

// Kind classifies why an operation failed.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindRateLimit    Kind = "rate_limit"
	KindAuth         Kind = "auth"
	KindPermanent4xx Kind = "permanent_4xx"
	KindTransient5xx Kind = "transient_5xx"
	KindUnknown      Kind = "unknown"
)

// retriable reports whether a Kind is worth another attempt. Auth and
// client errors never recover on their own; everything else might.
func (k Kind) retriable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimit, KindTransient5xx, KindUnknown:
		return true
	case KindAuth, KindPermanent4xx:
		return false
	default:
		return true
	}
}

// Classified is the error an operation should return from Execute so
// the controller can classify and, if appropriate, retry it. An
// operation that returns a plain error is classified as KindUnknown
// and is retried.
type Classified struct {
	Kind       Kind
	Err        error
	RetryAfter time.Duration // optional server-provided hint (RateLimit)
}

func (c *Classified) Error() string { return c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Classify extracts a Classified from an arbitrary error, defaulting
// to KindUnknown (retriable) when the error carries no classification.
func Classify(err error) (Kind, time.Duration) {
	if err == nil {
		return "", 0
	}
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind, c.RetryAfter
	}
	return KindUnknown, 0
}

// Policy configures one Execute call.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
	PerAttemptTimeout time.Duration
	OverallDeadline   time.Duration
}

// DefaultPolicy returns the standard policy: 3 retries, 1s initial
// delay doubling to a 30s cap, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
		PerAttemptTimeout: 0,
		OverallDeadline:   0,
	}
}

// CalculateBackoff returns the nominal (pre-jitter) delay before the
// given retry attempt, clamped to MaxDelay. Attempts 0 and 1 both
// return InitialDelay so the first retry never waits longer than a
// single multiplier step.
func CalculateBackoff(attempt int, p Policy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt - 1
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(exp))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// jitter adds uniform jitter in [-fraction/2, +fraction/2] of delay,
// clamped to >= 0, drawn from crypto/rand so delays across concurrent
// clients stay decorrelated.
func jitter(delay time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || delay <= 0 {
		return delay
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return delay
	}
	// Map a uniformly-distributed uint64 onto [-0.5, 0.5].
	u := binary.BigEndian.Uint64(buf[:])
	unit := float64(u) / float64(math.MaxUint64)
	offset := (unit - 0.5) * fraction

	jittered := float64(delay) * (1 + offset)
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

// Event is emitted during Execute for observability.
type Event struct {
	Type    string // attempt, retry, success, failure
	Attempt int
	Kind    Kind
	Delay   time.Duration
	Err     error
}

// EventSink receives retry Events; nil sinks are a no-op.
type EventSink func(Event)

// Stats accumulates counters across every Execute call made through a
// single Controller, updated atomically so concurrent readers see a
// consistent (if eventually-consistent) snapshot.
type Stats struct {
	mu            sync.Mutex
	attempts      int64
	successes     int64
	failures      int64
	totalRetries  int64
	retriesByKind map[Kind]int64
}

// Snapshot is a point-in-time copy of a Controller's counters, safe to
// serialize into request logs.
type Snapshot struct {
	Attempts      int64          `json:"attempts"`
	Successes     int64          `json:"successes"`
	Failures      int64          `json:"failures"`
	TotalRetries  int64          `json:"totalRetries"`
	RetriesByKind map[Kind]int64 `json:"retriesByKind"`
}

// AvgRetriesPerSuccess returns the mean number of retries consumed per
// eventual success, or 0 if there have been no successes yet.
func (s Snapshot) AvgRetriesPerSuccess() float64 {
	if s.Successes == 0 {
		return 0
	}
	return float64(s.TotalRetries) / float64(s.Successes)
}

func newStats() *Stats {
	return &Stats{retriesByKind: make(map[Kind]int64)}
}

func (s *Stats) recordAttempt() { atomic.AddInt64(&s.attempts, 1) }
func (s *Stats) recordSuccess() { atomic.AddInt64(&s.successes, 1) }
func (s *Stats) recordFailure() { atomic.AddInt64(&s.failures, 1) }

func (s *Stats) recordRetry(k Kind) {
	atomic.AddInt64(&s.totalRetries, 1)
	s.mu.Lock()
	s.retriesByKind[k]++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKind := make(map[Kind]int64, len(s.retriesByKind))
	for k, v := range s.retriesByKind {
		byKind[k] = v
	}
	return Snapshot{
		Attempts:      atomic.LoadInt64(&s.attempts),
		Successes:     atomic.LoadInt64(&s.successes),
		Failures:      atomic.LoadInt64(&s.failures),
		TotalRetries:  atomic.LoadInt64(&s.totalRetries),
		RetriesByKind: byKind,
	}
}

// Controller executes operations under the classified-retry policy
// and records process-wide statistics.
type Controller struct {
	log   *logrus.Entry
	stats *Stats
	sink  EventSink // controller-wide, in addition to any per-call sink
}

// New builds a Controller. log may be nil.
func New(log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Controller{log: log.WithField("component", "retry"), stats: newStats()}
}

// WithSink attaches a controller-wide EventSink (e.g. a metrics
// recorder) that observes every Execute call, alongside whatever
// per-call sink the caller supplies. Returns the controller for
// construction-time chaining; not safe to call concurrently with
// Execute.
func (c *Controller) WithSink(sink EventSink) *Controller {
	c.sink = sink
	return c
}

// Stats returns the controller's cumulative statistics.
func (c *Controller) Stats() *Stats { return c.stats }

// Execute runs op under policy, retrying classified-retriable errors
// with exponential backoff plus jitter until MaxRetries is exhausted,
// the OverallDeadline elapses, or ctx is cancelled. On success it
// returns the operation's result; on exhaustion it returns a
// *cerrors.RetryExhaustedError carrying the full attempt history.
func Execute[T any](ctx context.Context, c *Controller, policy Policy, sink EventSink, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if policy.MaxRetries <= 0 && policy.InitialDelay == 0 && policy.MaxDelay == 0 {
		policy = DefaultPolicy()
	}

	deadline := ctx
	var cancel context.CancelFunc
	if policy.OverallDeadline > 0 {
		deadline, cancel = context.WithTimeout(ctx, policy.OverallDeadline)
		defer cancel()
	}

	var history []cerrors.AttemptRecord
	emit := func(e Event) {
		if c.sink != nil {
			c.sink(e)
		}
		if sink != nil {
			sink(e)
		}
	}

	for attempt := 1; ; attempt++ {
		if err := deadline.Err(); err != nil {
			c.stats.recordFailure()
			return zero, &cerrors.RetryExhaustedError{Attempts: history, LastErr: err}
		}

		c.stats.recordAttempt()
		emit(Event{Type: "attempt", Attempt: attempt})

		attemptCtx := deadline
		var attemptCancel context.CancelFunc
		if policy.PerAttemptTimeout > 0 {
			attemptCtx, attemptCancel = context.WithTimeout(deadline, policy.PerAttemptTimeout)
		}
		result, err := op(attemptCtx)
		if attemptCancel != nil {
			attemptCancel()
		}

		if err == nil {
			c.stats.recordSuccess()
			emit(Event{Type: "success", Attempt: attempt})
			return result, nil
		}

		kind, retryAfter := Classify(err)
		history = append(history, cerrors.AttemptRecord{Attempt: attempt, Kind: string(kind), Err: err})

		if !kind.retriable() {
			c.stats.recordFailure()
			emit(Event{Type: "failure", Attempt: attempt, Kind: kind, Err: err})
			return zero, err
		}

		if attempt > policy.MaxRetries {
			c.stats.recordFailure()
			emit(Event{Type: "failure", Attempt: attempt, Kind: kind, Err: err})
			return zero, &cerrors.RetryExhaustedError{Attempts: history, LastErr: err}
		}

		delay := CalculateBackoff(attempt, policy)
		if kind == KindRateLimit && retryAfter > delay {
			delay = retryAfter
		}
		delay = jitter(delay, policy.JitterFraction)

		c.stats.recordRetry(kind)
		emit(Event{Type: "retry", Attempt: attempt, Kind: kind, Delay: delay, Err: err})
		c.log.WithFields(logrus.Fields{"attempt": attempt, "kind": kind, "delay": delay}).Warn("retrying operation")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-deadline.Done():
			timer.Stop()
			c.stats.recordFailure()
			return zero, &cerrors.RetryExhaustedError{Attempts: history, LastErr: deadline.Err()}
		}
	}
}

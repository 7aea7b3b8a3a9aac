package expertworker

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// InvocationLimiter caps the total number of expert invocations in
// flight across the whole process. Pending invocations wait on the
// semaphore under the invoking context, so time spent waiting for a
// slot counts against any per-attempt timeout that context carries.
type InvocationLimiter struct {
	sem *semaphore.Weighted
	max int64
}

// DefaultMaxConcurrentInvocations is twice the CPU count: expert calls
// are dominated by external subprocess/network time, so oversubscribing
// the cores is the point.
func DefaultMaxConcurrentInvocations() int64 {
	return int64(runtime.NumCPU()) * 2
}

// NewInvocationLimiter builds a limiter admitting at most max
// concurrent invocations. max <= 0 uses the default.
func NewInvocationLimiter(max int64) *InvocationLimiter {
	if max <= 0 {
		max = DefaultMaxConcurrentInvocations()
	}
	return &InvocationLimiter{sem: semaphore.NewWeighted(max), max: max}
}

// Max reports the configured concurrency ceiling.
func (l *InvocationLimiter) Max() int64 { return l.max }

// acquire blocks until a slot is free or ctx is cancelled.
func (l *InvocationLimiter) acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *InvocationLimiter) release() { l.sem.Release(1) }

// limitedWorker gates every Invoke through the shared limiter.
type limitedWorker struct {
	inner   Worker
	limiter *InvocationLimiter
}

func (w *limitedWorker) Name() string { return w.inner.Name() }

func (w *limitedWorker) Invoke(ctx context.Context, fullPrompt string, workdir string, instance *InstanceContext, deadline time.Time) (string, error) {
	if err := w.limiter.acquire(ctx); err != nil {
		return "", err
	}
	defer w.limiter.release()
	return w.inner.Invoke(ctx, fullPrompt, workdir, instance, deadline)
}

// limitedRegistry wraps every resolved Worker with the shared limiter.
type limitedRegistry struct {
	inner   Registry
	limiter *InvocationLimiter
}

// NewLimitedRegistry returns a Registry whose workers all share
// limiter's concurrency budget. Workers resolved for the same id are
// wrapped fresh per call; the budget itself is shared.
func NewLimitedRegistry(inner Registry, limiter *InvocationLimiter) Registry {
	return &limitedRegistry{inner: inner, limiter: limiter}
}

func (r *limitedRegistry) Worker(expertID string) (Worker, error) {
	w, err := r.inner.Worker(expertID)
	if err != nil {
		return nil, err
	}
	return &limitedWorker{inner: w, limiter: r.limiter}, nil
}

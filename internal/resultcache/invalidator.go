package resultcache

import (
	"os"
	"sync"
	"time"
)

// Reason names one invalidation trigger.
type Reason string

const (
	ReasonTimeExpired     Reason = "timeExpired"
	ReasonContextChanged  Reason = "contextChanged"
	ReasonLowConfidence   Reason = "lowConfidence"
	ReasonUserRequested   Reason = "userRequested"
	ReasonProjectChanged  Reason = "projectChanged"
	ReasonDependencyChanged Reason = "dependencyChanged"
)

// Context is the current request's context, compared against a stored
// Entry to decide whether it is still valid.
type Context struct {
	ProjectFingerprint string
	Workdir            string
	ExpertIDs          []string
	BypassCache        bool
	ManifestMtime      time.Time
}

// ProjectState is one observation of a workdir's tracked state:
// key-file mtimes/sizes, a dependency map, and the current head
// commit. Materiality is any mtime/size delta on a tracked file,
// any addition/removal of a tracked file, any dependency map
// inequality, or head-commit inequality.
type ProjectState struct {
	KeyFiles       map[string]KeyFileStamp
	DependencyHash string
	HeadCommit     string
}

// KeyFileStamp records a tracked file's last known mtime and size.
type KeyFileStamp struct {
	ModTime time.Time
	Size    int64
}

// ProjectStateTracker maintains one ProjectState per workdir and
// detects material drift, serializing writes per workdir.
type ProjectStateTracker struct {
	mu     sync.Mutex
	states map[string]ProjectState
}

// NewProjectStateTracker builds an empty tracker.
func NewProjectStateTracker() *ProjectStateTracker {
	return &ProjectStateTracker{states: make(map[string]ProjectState)}
}

// Record stores the current state for workdir, replacing any prior one.
func (t *ProjectStateTracker) Record(workdir string, state ProjectState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[workdir] = state
}

// Changed reports whether the current on-disk state for workdir
// materially differs from the last Record call.
func (t *ProjectStateTracker) Changed(workdir string, current ProjectState) bool {
	t.mu.Lock()
	prev, ok := t.states[workdir]
	t.mu.Unlock()
	if !ok {
		return false
	}
	if prev.DependencyHash != current.DependencyHash || prev.HeadCommit != current.HeadCommit {
		return true
	}
	if len(prev.KeyFiles) != len(current.KeyFiles) {
		return true
	}
	for path, stamp := range current.KeyFiles {
		prevStamp, ok := prev.KeyFiles[path]
		if !ok || !prevStamp.ModTime.Equal(stamp.ModTime) || prevStamp.Size != stamp.Size {
			return true
		}
	}
	return false
}

// Invalidator decides whether a stored Entry is still valid given a
// Context, accumulating a reason histogram for reporting.
type Invalidator struct {
	MaxAge        time.Duration
	MinConfidence float64
	Tracker       *ProjectStateTracker // optional; nil disables projectChanged

	mu        sync.Mutex
	histogram map[Reason]int64
}

// NewInvalidator builds an Invalidator with the given policy. tracker
// may be nil to disable the optional projectChanged trigger.
func NewInvalidator(maxAge time.Duration, minConfidence float64, tracker *ProjectStateTracker) *Invalidator {
	return &Invalidator{
		MaxAge:        maxAge,
		MinConfidence: minConfidence,
		Tracker:       tracker,
		histogram:     make(map[Reason]int64),
	}
}

// ShouldInvalidate evaluates every trigger against entry and ctx,
// returning whether the entry is invalid and why.
func (inv *Invalidator) ShouldInvalidate(entry Entry, ctx Context, now time.Time) (bool, []Reason) {
	var reasons []Reason

	if now.Sub(entry.StoredAt) > inv.MaxAge {
		reasons = append(reasons, ReasonTimeExpired)
	}

	if entry.ProjectFingerprint != ctx.ProjectFingerprint ||
		entry.Workdir != ctx.Workdir ||
		!sameExpertSet(entry.ExpertIDs, ctx.ExpertIDs) {
		reasons = append(reasons, ReasonContextChanged)
	}

	if entry.ObservedConfidence < inv.MinConfidence {
		reasons = append(reasons, ReasonLowConfidence)
	}

	if ctx.BypassCache {
		reasons = append(reasons, ReasonUserRequested)
	}

	if inv.Tracker != nil {
		if inv.Tracker.Changed(ctx.Workdir, ScanProjectState(ctx.Workdir)) {
			reasons = append(reasons, ReasonProjectChanged)
		}
	}

	if !ctx.ManifestMtime.IsZero() && ctx.ManifestMtime.After(entry.ManifestMtime) {
		reasons = append(reasons, ReasonDependencyChanged)
	}

	if len(reasons) > 0 {
		inv.mu.Lock()
		for _, r := range reasons {
			inv.histogram[r]++
		}
		inv.mu.Unlock()
	}

	return len(reasons) > 0, reasons
}

// Histogram returns a snapshot of accumulated invalidation reasons.
func (inv *Invalidator) Histogram() map[Reason]int64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make(map[Reason]int64, len(inv.histogram))
	for k, v := range inv.histogram {
		out[k] = v
	}
	return out
}

func sameExpertSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

// ManifestMtime reads the mtime of a dependency manifest file (e.g.
// go.mod, package.json), returning the zero Time if it cannot be stat'd.
func ManifestMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

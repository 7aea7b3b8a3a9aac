package resultcache

import (
	"time"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

// Entry is one stored cache record. The persisted form is plain JSON
// so operators can inspect the cache file directly.
type Entry struct {
	Key                  string              `json:"key"`
	Result               domain.DebateResult `json:"result"`
	StoredAt             time.Time           `json:"storedAt"`
	Workdir              string              `json:"workdir"`
	ProjectFingerprint   string              `json:"projectFingerprint,omitempty"`
	ExpertIDs            []string            `json:"expertIds"`
	ManifestMtime        time.Time           `json:"manifestMtime,omitempty"`
	EstimatedTokens      int64               `json:"estimatedTokens"`
	EstimatedCostDollars float64             `json:"estimatedCostDollars"`
	ObservedConfidence   float64             `json:"observedConfidence"`
}

// Stats tracks cache effectiveness, including running average response
// times for hits versus fresh debates.
type Stats struct {
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Stores           int64   `json:"stores"`
	Invalidations    int64   `json:"invalidations"`
	TokensSaved      int64   `json:"tokensSaved"`
	CostSavedDollars float64 `json:"costSavedDollars"`

	HitResponseTotalMs   int64 `json:"hitResponseTotalMs"`
	HitResponseCount     int64 `json:"hitResponseCount"`
	FreshResponseTotalMs int64 `json:"freshResponseTotalMs"`
	FreshResponseCount   int64 `json:"freshResponseCount"`
}

// AvgHitResponseMs returns the running average response time for
// cache hits in milliseconds.
func (s Stats) AvgHitResponseMs() float64 {
	if s.HitResponseCount == 0 {
		return 0
	}
	return float64(s.HitResponseTotalMs) / float64(s.HitResponseCount)
}

// AvgFreshResponseMs returns the running average response time for
// fresh (non-cached) debates in milliseconds.
func (s Stats) AvgFreshResponseMs() float64 {
	if s.FreshResponseCount == 0 {
		return 0
	}
	return float64(s.FreshResponseTotalMs) / float64(s.FreshResponseCount)
}

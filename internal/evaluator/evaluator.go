// Package evaluator defines the Evaluator collaborator interface and
// its degraded fallback: selecting the longest non-empty proposal with
// a fixed score of 50 when the evaluator fails.
package evaluator

import (
	"context"
	"errors"
)

// Ranking is the output of Rank.
type Ranking struct {
	BestExpertID string
	PerExpert    map[string]float64 // expertId -> score in [0,100]
	Notes        string
	Fallback     bool // true when FallbackRank produced this Ranking
}

// ErrNoProposals is returned by Rank/FallbackRank when given an empty
// proposal set.
var ErrNoProposals = errors.New("evaluator: no proposals to rank")

// Evaluator ranks a set of expert proposals for a question, selecting
// a winner. Implementations may themselves be LLM-backed; the core
// treats the result as authoritative.
type Evaluator interface {
	Rank(ctx context.Context, question string, proposals map[string]string) (Ranking, error)
}

// FallbackRank is the longest-non-empty-text fallback applied when
// the real Evaluator fails.
func FallbackRank(proposals map[string]string) (Ranking, error) {
	if len(proposals) == 0 {
		return Ranking{}, ErrNoProposals
	}

	var bestID string
	bestLen := -1
	per := make(map[string]float64, len(proposals))
	for id, text := range proposals {
		per[id] = 0
		if text == "" {
			continue
		}
		if l := len([]rune(text)); l > bestLen {
			bestLen = l
			bestID = id
		}
	}

	if bestID == "" {
		// every proposal was empty; still must name a bestExpertId per
		// the Ranking invariant, pick any deterministically-first id.
		for id := range proposals {
			if bestID == "" || id < bestID {
				bestID = id
			}
		}
	}
	per[bestID] = 50

	return Ranking{BestExpertID: bestID, PerExpert: per, Notes: "fallback: longest non-empty proposal", Fallback: true}, nil
}

// RankWithFallback calls eval.Rank and, on failure, applies
// FallbackRank, returning whether the fallback was used.
func RankWithFallback(ctx context.Context, eval Evaluator, question string, proposals map[string]string) (Ranking, error) {
	if eval != nil {
		ranking, err := eval.Rank(ctx, question, proposals)
		if err == nil {
			return ranking, nil
		}
	}
	return FallbackRank(proposals)
}

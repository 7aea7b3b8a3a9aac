// Package selector chooses which experts (and how many parallel
// replicas of each) run for a given question, either from a direct
// expert spec or by classifying the question through an Analyzer,
// with a deterministic fallback heuristic when analysis fails.
package selector

import (
	"context"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

// Analyzer classifies a question for routing. Implementations may be
// LLM-backed; the core only depends on this interface.
type Analyzer interface {
	Analyze(ctx context.Context, question, workdir string) (domain.QuestionAnalysis, error)
}

// Plan is the selector's output: the experts chosen and how many
// replicas of each, plus the analysis that produced the plan (absent
// fields zero-valued when the direct-spec path was used).
type Plan struct {
	Entries  []domain.ExpertReplicaPlanEntry
	Analysis domain.QuestionAnalysis
	Warnings []string
}

// TotalExperts returns the number of distinct experts in the plan.
func (p Plan) TotalExperts() int { return len(p.Entries) }

package selector

import (
	"context"
	"sort"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertregistry"
)

var complexityMax = map[domain.ComplexityLevel]int{
	domain.ComplexityTrivial:  2,
	domain.ComplexityLow:      3,
	domain.ComplexityMedium:   4,
	domain.ComplexityHigh:     5,
	domain.ComplexityCritical: 7,
}

var criticalityMultiplier = map[domain.CriticalityLevel]float64{
	domain.CriticalityLow:      1.0,
	domain.CriticalityMedium:   1.2,
	domain.CriticalityHigh:     1.5,
	domain.CriticalityCritical: 2.0,
}

// Selector chooses experts for a debate, either from a direct spec or
// by consulting an Analyzer (with fallback heuristic).
type Selector struct {
	registry           *expertregistry.Registry
	analyzer           Analyzer
	minDistinctExperts int
}

// New builds a Selector. analyzer may be nil, in which case the
// analyzed path always falls back to the deterministic heuristic.
func New(reg *expertregistry.Registry, analyzer Analyzer) *Selector {
	return &Selector{registry: reg, analyzer: analyzer, minDistinctExperts: 3}
}

// Select runs the direct-spec path when spec is non-empty, otherwise
// the analyzed path.
func (s *Selector) Select(ctx context.Context, question, workdir, spec string) (Plan, error) {
	if spec != "" {
		entries, warnings := ParseDirectSpec(spec, s.registry)
		if len(entries) > 0 {
			analysis := domain.QuestionAnalysis{Source: domain.SourceUserDirect}
			return Plan{Entries: entries, Analysis: analysis, Warnings: warnings}, nil
		}
		// Only unknown ids were given: fall through to the analyzed
		// path, carrying the warnings forward.
		plan, err := s.selectAnalyzed(ctx, question, workdir)
		plan.Warnings = append(plan.Warnings, warnings...)
		return plan, err
	}
	return s.selectAnalyzed(ctx, question, workdir)
}

func (s *Selector) selectAnalyzed(ctx context.Context, question, workdir string) (Plan, error) {
	analysis, err := s.analyze(ctx, question, workdir)
	entries := s.buildPlan(question, analysis)
	return Plan{Entries: entries, Analysis: analysis}, err
}

func (s *Selector) analyze(ctx context.Context, question, workdir string) (domain.QuestionAnalysis, error) {
	if s.analyzer != nil {
		analysis, err := s.analyzer.Analyze(ctx, question, workdir)
		if err == nil {
			return analysis, nil
		}
	}
	return FallbackHeuristic(question), nil
}

type candidate struct {
	id    string
	score float64
}

// buildPlan sizes the plan from complexity and criticality, scores
// every registered expert, and picks the top scorers.
func (s *Selector) buildPlan(question string, analysis domain.QuestionAnalysis) []domain.ExpertReplicaPlanEntry {
	maxSize := complexityMax[analysis.ComplexityLevel]
	if maxSize == 0 {
		maxSize = complexityMax[domain.ComplexityMedium]
	}

	mult := criticalityMultiplier[analysis.CriticalityLevel]
	if mult == 0 {
		mult = 1.0
	}
	planSize := int(float64(maxSize) * mult)
	if planSize > maxSize {
		planSize = maxSize
	}
	if planSize < 1 {
		planSize = 1
	}

	minExperts := s.minDistinctExperts
	if analysis.ComplexityLevel == domain.ComplexityTrivial {
		minExperts = 1
	}
	if planSize < minExperts {
		planSize = minExperts
	}

	shortlist := s.registry.DefaultShortlist(analysis.Category)
	all := s.registry.GetAll()
	tokens := tokenize(question)

	inShortlist := make(map[string]struct{}, len(shortlist))
	for _, id := range shortlist {
		inShortlist[id] = struct{}{}
	}

	candidates := make([]candidate, 0, len(all))
	for _, d := range all {
		score := 0.0
		if _, ok := inShortlist[d.ID]; ok {
			score += 30
		}
		if hasAnyCueMatch(s.registry.StrengthCues(d.ID), tokens) {
			score += 20
		}
		if analysis.Urgency > 0.7 {
			score += float64(d.RelativeSpeed) * 5
		}
		if analysis.CriticalityLevel == domain.CriticalityLow {
			score += (10 - d.RelativeCost) * 4
			if d.RelativeCost == 0 {
				score += 35
			}
		}
		if analysis.ComplexityLevel == domain.ComplexityHigh && s.registry.IsDeepReasoning(d.ID) {
			score += 15
		}
		candidates = append(candidates, candidate{id: d.ID, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	picked := make([]string, 0, planSize)
	for _, c := range candidates {
		if len(picked) >= planSize {
			break
		}
		picked = append(picked, c.id)
	}

	// Enforce minimum distinct experts unless complexity is trivial.
	if analysis.ComplexityLevel != domain.ComplexityTrivial && len(picked) < s.minDistinctExperts {
		pickedSet := make(map[string]struct{}, len(picked))
		for _, id := range picked {
			pickedSet[id] = struct{}{}
		}
		for _, c := range candidates {
			if len(picked) >= s.minDistinctExperts {
				break
			}
			if _, already := pickedSet[c.id]; already {
				continue
			}
			picked = append(picked, c.id)
			pickedSet[c.id] = struct{}{}
		}
	}

	entries := make([]domain.ExpertReplicaPlanEntry, 0, len(picked))
	for _, id := range picked {
		entries = append(entries, domain.ExpertReplicaPlanEntry{ExpertID: id, ReplicaCount: 1})
	}

	// Double the top-2 selections when both criticality and complexity
	// are high.
	if analysis.Criticality >= 0.8 && analysis.Complexity >= 0.7 {
		for i := 0; i < len(entries) && i < 2; i++ {
			entries[i].ReplicaCount *= 2
		}
	}

	return entries
}

func hasAnyCueMatch(cues []string, tokens map[string]struct{}) bool {
	for _, cue := range cues {
		if _, ok := tokens[cue]; ok {
			return true
		}
	}
	return false
}

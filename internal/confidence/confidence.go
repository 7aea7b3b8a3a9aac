// Package confidence combines the evaluator's best score with the
// (optional) cross-verification result, inter-expert dispersion, and
// survivor count into a single ConfidenceReport.
package confidence

import (
	"fmt"
	"math"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

// Input bundles everything the scorer needs.
type Input struct {
	EvaluatorScore     float64 // 0-100
	Verification       *domain.VerificationReport
	PerExpertScores    map[string]float64 // 0-100, for dispersion
	SurvivingExperts   int
	RankingWasFallback bool
}

// Score computes the ConfidenceReport for in.
func Score(in Input) domain.ConfidenceReport {
	factors := map[string]float64{
		"evaluatorScore":   in.EvaluatorScore,
		"survivingExperts": float64(in.SurvivingExperts),
		"dispersion":       dispersion(in.PerExpertScores),
	}

	finalScore := in.EvaluatorScore
	if in.Verification != nil && in.Verification.Enabled {
		factors["verificationConfidence"] = in.Verification.OverallConfidence
		finalScore = 0.8*in.EvaluatorScore + 0.2*in.Verification.OverallConfidence*100
	}
	if in.RankingWasFallback {
		factors["fallbackRanking"] = 1
	}

	// The reported score is always in [0,100], whatever the evaluator
	// returned.
	if finalScore < 0 {
		finalScore = 0
	}
	if finalScore > 100 {
		finalScore = 100
	}

	level := levelFor(finalScore)
	verificationRan := in.Verification != nil && in.Verification.Enabled

	return domain.ConfidenceReport{
		Score:          finalScore,
		Level:          level,
		Factors:        factors,
		Recommendation: recommendation(level, verificationRan, in.Verification),
	}
}

func levelFor(score float64) domain.ConfidenceLevel {
	switch {
	case score < 20:
		return domain.ConfidenceVeryLow
	case score < 40:
		return domain.ConfidenceLow
	case score < 60:
		return domain.ConfidenceMedium
	case score < 80:
		return domain.ConfidenceHigh
	default:
		return domain.ConfidenceVeryHigh
	}
}

func recommendation(level domain.ConfidenceLevel, verificationRan bool, v *domain.VerificationReport) string {
	verificationClause := "verification did not run"
	if verificationRan {
		if v.SecurityVerifiedOverall {
			verificationClause = "verification passed, including security checks"
		} else {
			verificationClause = "verification ran but did not clear all security checks"
		}
	}

	switch level {
	case domain.ConfidenceVeryHigh:
		return fmt.Sprintf("High confidence in the result; %s. Safe to apply with standard review.", verificationClause)
	case domain.ConfidenceHigh:
		return fmt.Sprintf("Good confidence in the result; %s. Recommend a brief human review before applying.", verificationClause)
	case domain.ConfidenceMedium:
		return fmt.Sprintf("Moderate confidence; %s. Recommend careful review and, if feasible, a second opinion.", verificationClause)
	case domain.ConfidenceLow:
		return fmt.Sprintf("Low confidence; %s. Treat as a starting point, not a final answer.", verificationClause)
	default:
		return fmt.Sprintf("Very low confidence; %s. Re-run with more experts or a narrower question.", verificationClause)
	}
}

// dispersion returns the population standard deviation of scores, 0
// if fewer than two scores are present.
func dispersion(scores map[string]float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))
	return math.Sqrt(variance)
}

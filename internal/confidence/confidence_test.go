package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

func TestScore_NoVerificationUsesEvaluatorScoreDirectly(t *testing.T) {
	report := Score(Input{EvaluatorScore: 85, SurvivingExperts: 3})
	assert.Equal(t, 85.0, report.Score)
	assert.Equal(t, domain.ConfidenceVeryHigh, report.Level)
}

func TestScore_VerificationBlendsIntoFinalScore(t *testing.T) {
	report := Score(Input{
		EvaluatorScore:   90,
		SurvivingExperts: 3,
		Verification: &domain.VerificationReport{
			Enabled:           true,
			OverallConfidence: 0.5,
		},
	})
	// 0.8*90 + 0.2*0.5*100 = 72 + 10 = 82
	assert.InDelta(t, 82.0, report.Score, 0.001)
	assert.Equal(t, domain.ConfidenceVeryHigh, report.Level)
}

func TestScore_LevelThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.ConfidenceLevel
	}{
		{10, domain.ConfidenceVeryLow},
		{20, domain.ConfidenceLow},
		{39.9, domain.ConfidenceLow},
		{40, domain.ConfidenceMedium},
		{59.9, domain.ConfidenceMedium},
		{60, domain.ConfidenceHigh},
		{79.9, domain.ConfidenceHigh},
		{80, domain.ConfidenceVeryHigh},
	}
	for _, c := range cases {
		report := Score(Input{EvaluatorScore: c.score})
		assert.Equal(t, c.want, report.Level, "score=%v", c.score)
	}
}

func TestScore_RecommendationMentionsSecurityWhenVerified(t *testing.T) {
	report := Score(Input{
		EvaluatorScore: 90,
		Verification: &domain.VerificationReport{
			Enabled:                 true,
			OverallConfidence:       0.9,
			SecurityVerifiedOverall: true,
		},
	})
	assert.Contains(t, report.Recommendation, "security")
}

func TestScore_FallbackRankingRecordedAsFactor(t *testing.T) {
	report := Score(Input{EvaluatorScore: 50, RankingWasFallback: true})
	assert.Equal(t, float64(1), report.Factors["fallbackRanking"])
}

func TestScore_DispersionFactorComputed(t *testing.T) {
	report := Score(Input{
		EvaluatorScore:   70,
		PerExpertScores: map[string]float64{"k1": 70, "k2": 50, "k3": 90},
	})
	assert.Greater(t, report.Factors["dispersion"], 0.0)
}

package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
)

func TestDefaultCatalogue_HasFiveChallenges(t *testing.T) {
	assert.Len(t, DefaultCatalogue(), 5)
}

func TestPromptedChallenge_PassesWhenNoIssuesReported(t *testing.T) {
	ch := DefaultCatalogue()[0]
	reviewer := expertworker.NewMockWorker("r1", `{"issues":[],"highSeverity":false}`)
	result, err := ch.Run(context.Background(), reviewer, "q", "answer", time.Time{})
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestPromptedChallenge_FailsWhenIssuesReported(t *testing.T) {
	ch := DefaultCatalogue()[0]
	reviewer := expertworker.NewMockWorker("r1", `{"issues":["sql injection possible"],"highSeverity":true}`)
	result, err := ch.Run(context.Background(), reviewer, "q", "answer", time.Time{})
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.True(t, result.HighSeverity)
}

func TestChallengeReviewerFor_ExcludesAuthor(t *testing.T) {
	candidates := map[string]expertworker.Worker{
		"k1": expertworker.NewMockWorker("k1", "{}"),
		"k2": expertworker.NewMockWorker("k2", "{}"),
	}
	id, _, ok := ChallengeReviewerFor(DefaultCatalogue()[0], candidates, "k1")
	require.True(t, ok)
	assert.Equal(t, "k2", id)
}

func TestChallengeReviewerFor_NoneAvailable(t *testing.T) {
	_, _, ok := ChallengeReviewerFor(DefaultCatalogue()[0], map[string]expertworker.Worker{}, "k1")
	assert.False(t, ok)
}

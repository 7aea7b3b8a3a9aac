package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
)

func cleanJSONWorker(name string) expertworker.Worker {
	return expertworker.NewMockWorker(name, `{"accuracy":0.9,"security":0.9,"logic":0.9,"completeness":0.9,"bestPractice":0.9,"confidence":0.9,"warnings":[]}`)
}

func TestVerifier_Verify_TooFewWorkersDegradesGracefully(t *testing.T) {
	v := New(nil)
	proposals := map[string]domain.Proposal{"k1": {Succeeded: true, Text: "answer"}}
	workers := map[string]expertworker.Worker{"k1": cleanJSONWorker("k1")}
	report := v.Verify(context.Background(), "q", proposals, workers, Options{})
	assert.False(t, report.Enabled)
}

func TestVerifier_Verify_ProducesPerProposalConfidence(t *testing.T) {
	v := New(nil)
	proposals := map[string]domain.Proposal{
		"k1": {Succeeded: true, Text: "a clean answer with no code"},
	}
	workers := map[string]expertworker.Worker{
		"k1": cleanJSONWorker("k1"),
		"k2": cleanJSONWorker("k2"),
		"k3": cleanJSONWorker("k3"),
	}
	report := v.Verify(context.Background(), "q", proposals, workers, Options{
		Catalogue: []Challenge{}, // skip adversarial layer for a deterministic unit test
	})
	require.True(t, report.Enabled)
	require.Contains(t, report.PerProposal, "k1")
	pv := report.PerProposal["k1"]
	assert.Greater(t, pv.Confidence, 0.1)
	assert.Greater(t, report.OverallConfidence, 0.0)
}

func TestVerifier_Verify_SkipsFailedProposals(t *testing.T) {
	v := New(nil)
	proposals := map[string]domain.Proposal{
		"k1": {Succeeded: false, Text: ""},
	}
	workers := map[string]expertworker.Worker{
		"k1": cleanJSONWorker("k1"),
		"k2": cleanJSONWorker("k2"),
	}
	report := v.Verify(context.Background(), "q", proposals, workers, Options{Catalogue: []Challenge{}})
	assert.Empty(t, report.PerProposal)
}

func TestVerifier_Verify_CodeIssuesLowerConfidence(t *testing.T) {
	v := New(nil)
	clean := map[string]domain.Proposal{"k1": {Succeeded: true, Text: "no code here"}}
	dirty := map[string]domain.Proposal{"k1": {Succeeded: true, Text: "```go\nresult = eval(x)\n```"}}
	workers := map[string]expertworker.Worker{
		"k1": cleanJSONWorker("k1"),
		"k2": cleanJSONWorker("k2"),
		"k3": cleanJSONWorker("k3"),
	}
	opts := Options{Catalogue: []Challenge{}, PerAttemptDeadline: time.Time{}}

	cleanReport := v.Verify(context.Background(), "q", clean, workers, opts)
	dirtyReport := v.Verify(context.Background(), "q", dirty, workers, opts)

	assert.Less(t, dirtyReport.PerProposal["k1"].Confidence, cleanReport.PerProposal["k1"].Confidence)
}

package debate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertregistry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/parallel"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/retry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/verify"
)

func newTestVerifier() *verify.Verifier {
	return verify.New([]verify.Challenge{}) // empty catalogue keeps the unit test deterministic
}

func cleanFactCheckWorker(id string) expertworker.Worker {
	return expertworker.NewMockWorker(id, `{"accuracy":0.9,"security":0.9,"logic":0.9,"completeness":0.9,"bestPractice":0.9,"confidence":0.9,"warnings":[]}`)
}

func testRegistry(t *testing.T) *expertregistry.Registry {
	t.Helper()
	reg, err := expertregistry.FromCatalog(expertregistry.Catalog{
		Experts: []expertregistry.Descriptor{
			{ID: "k1", DisplayName: "K1", RoleTag: "generalist"},
			{ID: "k2", DisplayName: "K2", RoleTag: "specialist"},
			{ID: "k3", DisplayName: "K3", RoleTag: "reviewer"},
		},
	})
	require.NoError(t, err)
	return reg
}

func testRunnerDeps(t *testing.T) *parallel.Runner {
	t.Helper()
	rc := retry.New(logrus.NewEntry(logrus.New()))
	return parallel.New(rc, retry.DefaultPolicy())
}

func workerRegistry(workers map[string]expertworker.Worker) expertworker.Registry {
	return expertworker.NewStaticRegistry(workers, nil)
}

func TestRun_InsufficientExpertsWhenFewerThanTwoSucceed(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	runner := New(pr, nil, nil, reg, nil)

	workers := workerRegistry(map[string]expertworker.Worker{
		"k1": expertworker.NewMockWorker("k1", "a good answer"),
	})
	plan := []domain.ExpertReplicaPlanEntry{{ExpertID: "k1", ReplicaCount: 1}}

	_, err := runner.Run(context.Background(), "how do I do X", "/tmp", plan, workers, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient experts")
}

func TestRun_ProducesSynthesizedFinalTextFromTwoExperts(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	runner := New(pr, nil, nil, reg, nil)

	workers := workerRegistry(map[string]expertworker.Worker{
		"k1": expertworker.NewMockWorker("k1", "k1's detailed proposal with plenty of content"),
		"k2": expertworker.NewMockWorker("k2", "k2's shorter idea"),
	})
	plan := []domain.ExpertReplicaPlanEntry{
		{ExpertID: "k1", ReplicaCount: 1},
		{ExpertID: "k2", ReplicaCount: 1},
	}

	result, err := runner.Run(context.Background(), "how do I do X", "/tmp", plan, workers, Options{SkipVerification: true})
	require.NoError(t, err)
	assert.Contains(t, result.FinalText, "# Consensus Answer")
	assert.Contains(t, result.FinalText, "## Solution")
	assert.Contains(t, result.FinalText, "## Per-expert evaluation")
	assert.NotEmpty(t, result.Ranking.BestExpertID)
}

func TestRun_SkipVerificationDisablesVerificationReport(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	runner := New(pr, nil, nil, reg, nil)

	workers := workerRegistry(map[string]expertworker.Worker{
		"k1": expertworker.NewMockWorker("k1", "a security review of password handling"),
		"k2": expertworker.NewMockWorker("k2", "another answer"),
	})
	plan := []domain.ExpertReplicaPlanEntry{
		{ExpertID: "k1", ReplicaCount: 1},
		{ExpertID: "k2", ReplicaCount: 1},
	}

	result, err := runner.Run(context.Background(), "review our password security", "/tmp", plan, workers, Options{SkipVerification: true})
	require.NoError(t, err)
	assert.Nil(t, result.Verification)
}

func TestRun_ForceVerificationProducesReportWithEnoughWorkers(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	verifier := newTestVerifier()
	runner := New(pr, nil, verifier, reg, nil)

	workers := workerRegistry(map[string]expertworker.Worker{
		"k1": cleanFactCheckWorker("k1"),
		"k2": cleanFactCheckWorker("k2"),
		"k3": cleanFactCheckWorker("k3"),
	})
	plan := []domain.ExpertReplicaPlanEntry{
		{ExpertID: "k1", ReplicaCount: 1},
		{ExpertID: "k2", ReplicaCount: 1},
		{ExpertID: "k3", ReplicaCount: 1},
	}

	result, err := runner.Run(context.Background(), "plain question", "/tmp", plan, workers, Options{ForceVerification: true})
	require.NoError(t, err)
	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.Enabled)
}

func TestRun_ImprovementsExcludeBestExpert(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	runner := New(pr, nil, nil, reg, nil)

	workers := workerRegistry(map[string]expertworker.Worker{
		"k1": expertworker.NewMockWorker("k1", "a much longer and more detailed proposal that should win ranking by length in the fallback ranker"),
		"k2": expertworker.NewMockWorker("k2", "short"),
	})
	plan := []domain.ExpertReplicaPlanEntry{
		{ExpertID: "k1", ReplicaCount: 1},
		{ExpertID: "k2", ReplicaCount: 1},
	}

	result, err := runner.Run(context.Background(), "question", "/tmp", plan, workers, Options{SkipVerification: true})
	require.NoError(t, err)
	_, hasBest := result.Improvements[result.Ranking.BestExpertID]
	assert.False(t, hasBest)
}

// promptRecordingWorker captures every prompt it is invoked with.
type promptRecordingWorker struct {
	mu      sync.Mutex
	name    string
	prompts []string
}

func (p *promptRecordingWorker) Name() string { return p.name }

func (p *promptRecordingWorker) Invoke(ctx context.Context, prompt, workdir string, inst *expertworker.InstanceContext, deadline time.Time) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	return "answer from " + p.name, nil
}

func (p *promptRecordingWorker) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

func TestRun_UltrathinkMarkerOnlyOnFirstExpertsFirstInstance(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	runner := New(pr, nil, nil, reg, nil)

	first := &promptRecordingWorker{name: "k1"}
	second := &promptRecordingWorker{name: "k2"}
	workers := workerRegistry(map[string]expertworker.Worker{"k1": first, "k2": second})
	plan := []domain.ExpertReplicaPlanEntry{
		{ExpertID: "k1", ReplicaCount: 1},
		{ExpertID: "k2", ReplicaCount: 1},
	}

	_, err := runner.Run(context.Background(), "deep question", "/tmp", plan, workers, Options{Ultrathink: true, SkipVerification: true})
	require.NoError(t, err)

	firstPrompts := first.recorded()
	require.NotEmpty(t, firstPrompts)
	assert.Contains(t, firstPrompts[0], "ultrathink")
	for _, p := range second.recorded() {
		assert.NotContains(t, p, "ultrathink")
	}
}

func TestRun_ReplicatedExpertYieldsSynthesizedProposal(t *testing.T) {
	reg := testRegistry(t)
	pr := testRunnerDeps(t)
	runner := New(pr, nil, nil, reg, nil)

	workers := workerRegistry(map[string]expertworker.Worker{
		"k1": expertworker.NewMockWorker("k1", "a replica draft with enough substance to rank"),
		"k2": expertworker.NewMockWorker("k2", "a single competing answer"),
	})
	plan := []domain.ExpertReplicaPlanEntry{
		{ExpertID: "k1", ReplicaCount: 2},
		{ExpertID: "k2", ReplicaCount: 1},
	}

	result, err := runner.Run(context.Background(), "q", "/tmp", plan, workers, Options{SkipVerification: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OriginSynthesized, result.Proposals["k1"].Origin)
	assert.Equal(t, domain.OriginSingle, result.Proposals["k2"].Origin)
	assert.Equal(t, 2, result.Proposals["k1"].ReplicaCount)
}

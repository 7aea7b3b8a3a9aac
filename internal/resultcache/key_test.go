package resultcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "what is go", NormalizeQuestion("  What Is Go  "))
}

func TestKey_DeterministicForSameInput(t *testing.T) {
	in := KeyInput{
		NormalizedQuestion: "what is go",
		Category:           "general/analysis",
		ComplexityLevel:    domain.ComplexityMedium,
		Workdir:            "/tmp/proj",
		ExpertReplicaPlan: []domain.ExpertReplicaPlanEntry{
			{ExpertID: "k2", ReplicaCount: 1},
			{ExpertID: "k1", ReplicaCount: 2},
		},
		ProjectFingerprint: "abc123",
	}
	a := Key(in)
	b := Key(in)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // SHA-256 hex
}

func TestKey_OrderOfPlanEntriesDoesNotAffectKey(t *testing.T) {
	base := KeyInput{
		NormalizedQuestion: "q",
		ExpertReplicaPlan: []domain.ExpertReplicaPlanEntry{
			{ExpertID: "k1", ReplicaCount: 1},
			{ExpertID: "k2", ReplicaCount: 1},
		},
	}
	reordered := KeyInput{
		NormalizedQuestion: "q",
		ExpertReplicaPlan: []domain.ExpertReplicaPlanEntry{
			{ExpertID: "k2", ReplicaCount: 1},
			{ExpertID: "k1", ReplicaCount: 1},
		},
	}
	assert.Equal(t, Key(base), Key(reordered))
}

func TestKey_DifferentInputsProduceDifferentKeys(t *testing.T) {
	a := Key(KeyInput{NormalizedQuestion: "a"})
	b := Key(KeyInput{NormalizedQuestion: "b"})
	assert.NotEqual(t, a, b)
}

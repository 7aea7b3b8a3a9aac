package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

// KeyInput names the fields hashed into a cache key. The canonical
// form is JSON with keys in sorted order (the struct fields are
// declared alphabetically by tag, which encoding/json preserves), LF
// line endings, and no insignificant whitespace. Replica-plan entries
// are sorted by expert id so two spellings of the same plan hash
// identically.
type KeyInput struct {
	Category           string                          `json:"category"`
	ComplexityLevel    domain.ComplexityLevel          `json:"complexityLevel"`
	ExpertReplicaPlan  []domain.ExpertReplicaPlanEntry `json:"expertReplicaPlan"`
	NormalizedQuestion string                          `json:"normalizedQuestion"`
	ProjectFingerprint string                          `json:"projectFingerprint"`
	UseAnalyzer        bool                            `json:"useAnalyzer"`
	Workdir            string                          `json:"workdir"`
}

// NormalizeQuestion lowercases and trims a question for key purposes.
func NormalizeQuestion(question string) string {
	return strings.TrimSpace(strings.ToLower(question))
}

// Key computes the SHA-256 hex digest of in's canonical JSON form.
func Key(in KeyInput) string {
	sorted := append([]domain.ExpertReplicaPlanEntry(nil), in.ExpertReplicaPlan...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExpertID < sorted[j].ExpertID })
	in.ExpertReplicaPlan = sorted

	buf, _ := json.Marshal(in)
	normalized := strings.ReplaceAll(string(buf), "\r\n", "\n")

	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
)

// WorkerEvaluator ranks proposals by asking a designated arbiter
// worker to score them, parsing a machine-readable JSON reply. It is
// the production implementation; tests and degraded runs use
// FallbackRank instead.
type WorkerEvaluator struct {
	arbiter  expertworker.Worker
	deadline time.Duration // per-rank ceiling; 0 means rely on ctx alone
}

// NewWorkerEvaluator builds an evaluator backed by arbiter.
func NewWorkerEvaluator(arbiter expertworker.Worker, deadline time.Duration) *WorkerEvaluator {
	return &WorkerEvaluator{arbiter: arbiter, deadline: deadline}
}

type rankResponse struct {
	Best   string             `json:"best"`
	Scores map[string]float64 `json:"scores"`
	Notes  string             `json:"notes"`
}

// buildRankPrompt renders the ranking prompt. Proposals are included
// in sorted id order so the prompt is deterministic for a given input.
func buildRankPrompt(question string, proposals map[string]string) string {
	ids := make([]string, 0, len(proposals))
	for id := range proposals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("You are the debate arbiter. Score each candidate answer to the question below from 0 to 100 and pick the best one.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	for _, id := range ids {
		fmt.Fprintf(&b, "--- Candidate %s ---\n%s\n\n", id, proposals[id])
	}
	b.WriteString(`Reply with ONLY a JSON object of the shape:
{"best":"<candidate id>","scores":{"<id>":0-100,...},"notes":"..."}
`)
	return b.String()
}

func parseRankResponse(text string) (rankResponse, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return rankResponse{}, fmt.Errorf("no JSON object found in rank response")
	}
	var resp rankResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return rankResponse{}, fmt.Errorf("parse rank response: %w", err)
	}
	return resp, nil
}

// Rank implements Evaluator. The returned Ranking always satisfies the
// invariant that BestExpertID is present in PerExpert and carries its
// maximum score: an arbiter reply that names an unknown best, omits a
// candidate, or scores the best below another candidate is normalized
// rather than rejected, since a partially-usable ranking still beats
// the length fallback.
func (e *WorkerEvaluator) Rank(ctx context.Context, question string, proposals map[string]string) (Ranking, error) {
	if len(proposals) == 0 {
		return Ranking{}, ErrNoProposals
	}

	var deadline time.Time
	if e.deadline > 0 {
		deadline = time.Now().Add(e.deadline)
	}

	raw, err := e.arbiter.Invoke(ctx, buildRankPrompt(question, proposals), "", nil, deadline)
	if err != nil {
		return Ranking{}, fmt.Errorf("arbiter invoke: %w", err)
	}
	resp, err := parseRankResponse(raw)
	if err != nil {
		return Ranking{}, err
	}

	per := make(map[string]float64, len(proposals))
	for id := range proposals {
		score, ok := resp.Scores[id]
		if !ok {
			score = 0
		}
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		per[id] = score
	}

	var maxID string
	for id, score := range per {
		if maxID == "" || score > per[maxID] || (score == per[maxID] && id < maxID) {
			maxID = id
		}
	}
	best := resp.Best
	if score, known := per[best]; !known || score < per[maxID] {
		best = maxID
	}

	return Ranking{BestExpertID: best, PerExpert: per, Notes: resp.Notes}, nil
}

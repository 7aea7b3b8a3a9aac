// Challenge plugin catalogue for the adversarial-test layer. Each
// catalogue entry sends a fixed probe instruction to a reviewing
// expert and parses a machine-readable verdict; the catalogue is a
// plain slice so callers can extend or replace it.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
)

// ChallengeResult is one challenge's outcome against one proposal.
type ChallengeResult struct {
	ChallengeID  string
	Passed       bool
	Issues       []string
	HighSeverity bool
}

// Challenge is one adversarial probe in the catalogue.
type Challenge interface {
	ID() string
	Category() string // e.g. "security", "correctness", "performance"
	Run(ctx context.Context, reviewer expertworker.Worker, question, proposalText string, deadline time.Time) (ChallengeResult, error)
}

type challengeResponse struct {
	Issues       []string `json:"issues"`
	HighSeverity bool     `json:"highSeverity"`
}

// promptedChallenge runs a fixed instruction against a reviewer and
// parses a {"issues":[...],"highSeverity":bool} response. Every
// catalogue entry below is one of these with a different id/category/prompt.
type promptedChallenge struct {
	id          string
	category    string
	instruction string
}

func (p promptedChallenge) ID() string       { return p.id }
func (p promptedChallenge) Category() string { return p.category }

func (p promptedChallenge) Run(ctx context.Context, reviewer expertworker.Worker, question, proposalText string, deadline time.Time) (ChallengeResult, error) {
	prompt := fmt.Sprintf(`Adversarial challenge: %s

Question: %s

Proposed answer:
%s

%s

Reply with ONLY a JSON object: {"issues":["..."],"highSeverity":true|false}.
An empty issues array means the challenge found nothing and the
proposal passes.
`, p.id, question, proposalText, p.instruction)

	raw, err := reviewer.Invoke(ctx, prompt, "", nil, deadline)
	if err != nil {
		return ChallengeResult{}, err
	}

	resp, err := parseChallengeResponse(raw)
	if err != nil {
		return ChallengeResult{}, err
	}

	return ChallengeResult{
		ChallengeID:  p.id,
		Passed:       len(resp.Issues) == 0,
		Issues:       resp.Issues,
		HighSeverity: resp.HighSeverity,
	}, nil
}

func parseChallengeResponse(text string) (challengeResponse, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return challengeResponse{}, fmt.Errorf("no JSON object found in challenge response")
	}
	var resp challengeResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return challengeResponse{}, fmt.Errorf("parse challenge response: %w", err)
	}
	return resp, nil
}

// DefaultCatalogue is the standard adversarial catalogue: security
// hunt, edge-case discovery, performance stress, logic errors,
// integration failure points.
func DefaultCatalogue() []Challenge {
	return []Challenge{
		promptedChallenge{
			id:          "security-hunt",
			category:    "security",
			instruction: "Hunt for security vulnerabilities: injection, auth bypass, secret leakage, unsafe deserialization.",
		},
		promptedChallenge{
			id:          "edge-case-discovery",
			category:    "correctness",
			instruction: "Find edge cases the proposed answer fails to handle: empty input, nil, boundary values, concurrent access.",
		},
		promptedChallenge{
			id:          "performance-stress",
			category:    "performance",
			instruction: "Assess whether the proposed approach degrades badly under load: N+1 queries, unbounded memory, quadratic algorithms.",
		},
		promptedChallenge{
			id:          "logic-errors",
			category:    "correctness",
			instruction: "Check the proposed logic for off-by-one errors, incorrect boolean conditions, or mishandled control flow.",
		},
		promptedChallenge{
			id:          "integration-failure-points",
			category:    "reliability",
			instruction: "Identify integration points (network calls, file I/O, external services) that lack error handling or retries.",
		},
	}
}

// ChallengeReviewerFor picks a reviewer for ch from candidates,
// excluding excludeID (the proposal's author). Candidates whose id
// mentions the challenge's category are preferred; otherwise the
// lowest id wins, so the pick is deterministic for a given pool.
func ChallengeReviewerFor(ch Challenge, candidates map[string]expertworker.Worker, excludeID string) (string, expertworker.Worker, bool) {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		if id != excludeID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil, false
	}
	sort.Strings(ids)

	for _, id := range ids {
		if strings.Contains(strings.ToLower(id), ch.Category()) {
			return id, candidates[id], true
		}
	}
	return ids[0], candidates[ids[0]], true
}

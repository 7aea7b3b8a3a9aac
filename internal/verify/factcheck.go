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

// FactCheckResponse is the machine-readable schema a fact-check prompt
// asks the reviewing expert to return.
type FactCheckResponse struct {
	Accuracy     float64  `json:"accuracy"`
	Security     float64  `json:"security"`
	Logic        float64  `json:"logic"`
	Completeness float64  `json:"completeness"`
	BestPractice float64  `json:"bestPractice"`
	Confidence   float64  `json:"confidence"`
	Warnings     []string `json:"warnings"`
}

var factCheckPromptTemplate = `%s (%s)

Verify the following answer to the question below. Assess accuracy,
security, logic, completeness, and adherence to best practice. Reply
with ONLY a JSON object of the shape:
{"accuracy":0-1,"security":0-1,"logic":0-1,"completeness":0-1,"bestPractice":0-1,"confidence":0-1,"warnings":["..."]}

Question: %s

Answer to verify:
%s
`

// BuildFactCheckPrompt renders the fact-check prompt for a reviewer
// named displayName/roleTag, verifying proposalText against question.
func BuildFactCheckPrompt(displayName, roleTag, question, proposalText string) string {
	return fmt.Sprintf(factCheckPromptTemplate, displayName, roleTag, question, proposalText)
}

// ParseFactCheckResponse extracts the JSON object embedded in text.
func ParseFactCheckResponse(text string) (FactCheckResponse, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return FactCheckResponse{}, fmt.Errorf("no JSON object found in fact-check response")
	}
	var resp FactCheckResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return FactCheckResponse{}, fmt.Errorf("parse fact-check response: %w", err)
	}
	return resp, nil
}

// Reviewer is the subset of expertworker.Worker the fact-check layer
// needs, named to document intent at call sites.
type Reviewer = expertworker.Worker

// RunFactCheck sends proposalText to up to 3 reviewers (excluding the
// proposal's own author) and aggregates their responses into a
// confidence-weighted mean accuracy, plus accumulated warnings.
func RunFactCheck(ctx context.Context, reviewers map[string]Reviewer, question, proposalText string, deadline time.Time) (factAccuracy float64, warnings []string) {
	const maxReviewers = 3

	names := make([]string, 0, len(reviewers))
	for id := range reviewers {
		names = append(names, id)
	}
	sort.Strings(names)
	if len(names) > maxReviewers {
		names = names[:maxReviewers]
	}

	var weightedSum, weightTotal float64
	for _, id := range names {
		worker := reviewers[id]
		prompt := BuildFactCheckPrompt(id, "reviewer", question, proposalText)
		raw, err := worker.Invoke(ctx, prompt, "", nil, deadline)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("fact-check reviewer %s failed: %v", id, err))
			continue
		}
		resp, err := ParseFactCheckResponse(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("fact-check reviewer %s returned unparseable response", id))
			continue
		}
		weight := resp.Confidence
		if weight <= 0 {
			weight = 0.5
		}
		weightedSum += resp.Accuracy * weight
		weightTotal += weight
		warnings = append(warnings, resp.Warnings...)
	}

	if weightTotal == 0 {
		return 0.5, append(warnings, "fact-check produced no usable reviews")
	}
	return weightedSum / weightTotal, warnings
}

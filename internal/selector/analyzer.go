package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
)

// WorkerAnalyzer classifies questions by asking a designated worker
// for a machine-readable analysis. Any failure (invoke error,
// unparseable reply, out-of-range values) surfaces as an error so the
// caller applies FallbackHeuristic.
type WorkerAnalyzer struct {
	worker   expertworker.Worker
	deadline time.Duration
}

// NewWorkerAnalyzer builds an analyzer backed by worker.
func NewWorkerAnalyzer(worker expertworker.Worker, deadline time.Duration) *WorkerAnalyzer {
	return &WorkerAnalyzer{worker: worker, deadline: deadline}
}

type analysisResponse struct {
	Category     string   `json:"category"`
	Complexity   float64  `json:"complexity"`
	Criticality  float64  `json:"criticality"`
	Urgency      float64  `json:"urgency"`
	ContextClues []string `json:"contextClues"`
	Reasoning    string   `json:"reasoning"`
	Confidence   float64  `json:"confidence"`
}

var analyzePromptTemplate = `Classify the following question for expert routing.

Question: %s
Working directory: %s

Reply with ONLY a JSON object of the shape:
{"category":"<tag>","complexity":0-1,"criticality":0-1,"urgency":0-1,"contextClues":["..."],"reasoning":"...","confidence":0-1}
Use "general/analysis" as the category when nothing more specific fits.
`

// Analyze implements Analyzer.
func (a *WorkerAnalyzer) Analyze(ctx context.Context, question, workdir string) (domain.QuestionAnalysis, error) {
	var deadline time.Time
	if a.deadline > 0 {
		deadline = time.Now().Add(a.deadline)
	}

	prompt := fmt.Sprintf(analyzePromptTemplate, question, workdir)
	raw, err := a.worker.Invoke(ctx, prompt, workdir, nil, deadline)
	if err != nil {
		return domain.QuestionAnalysis{}, fmt.Errorf("analyzer invoke: %w", err)
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return domain.QuestionAnalysis{}, fmt.Errorf("no JSON object found in analysis response")
	}
	var resp analysisResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return domain.QuestionAnalysis{}, fmt.Errorf("parse analysis response: %w", err)
	}

	if resp.Category == "" ||
		!inUnitRange(resp.Complexity) || !inUnitRange(resp.Criticality) ||
		!inUnitRange(resp.Urgency) || !inUnitRange(resp.Confidence) {
		return domain.QuestionAnalysis{}, fmt.Errorf("analysis response out of range")
	}

	return domain.QuestionAnalysis{
		Category:             resp.Category,
		Complexity:           resp.Complexity,
		ComplexityLevel:      domain.ComplexityLevelOf(resp.Complexity),
		Criticality:          resp.Criticality,
		CriticalityLevel:     domain.CriticalityLevelOf(resp.Criticality),
		Urgency:              resp.Urgency,
		ContextClues:         resp.ContextClues,
		ReasoningText:        resp.Reasoning,
		ConfidenceOfAnalysis: resp.Confidence,
		Source:               domain.SourceAnalyzer,
	}, nil
}

func inUnitRange(v float64) bool { return v >= 0 && v <= 1 }

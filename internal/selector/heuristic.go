package selector

import (
	"strings"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

// categoryKeywords is the small first-match keyword table used when
// no Analyzer is available.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"security", []string{"password", "auth", "encrypt", "vulnerability", "exploit", "secure"}},
	{"financial", []string{"payment", "billing", "invoice", "pricing", "revenue"}},
	{"production", []string{"production", "deploy", "rollout", "incident", "outage"}},
	{"data-migration", []string{"migrate", "migration", "schema change", "backfill"}},
	{"compliance", []string{"gdpr", "hipaa", "compliance", "audit", "regulation"}},
	{"architecture", []string{"architecture", "design pattern", "system design"}},
	{"algorithms", []string{"algorithm", "complexity", "big-o", "data structure"}},
	{"performance", []string{"performance", "latency", "throughput", "optimize"}},
	{"testing", []string{"test", "unit test", "coverage", "qa"}},
	{"implementation", []string{"implement", "write code", "build a"}},
	{"refactoring", []string{"refactor", "clean up", "technical debt"}},
	{"operations", []string{"monitor", "alerting", "on-call", "runbook"}},
	{"factual", []string{"what is", "define", "how many", "when did"}},
}

var complexityLoweringVocab = []string{"variable", "function", "loop", "for loop", "if statement", "print statement"}

var criticalityBumpWords = []string{"critical", "urgent", "production"}
var complexityBumpWords = []string{"complex"}

func tokenize(question string) map[string]struct{} {
	lower := strings.ToLower(question)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':', '(', ')':
			return true
		}
		return false
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// FallbackHeuristic classifies a question deterministically when the
// Analyzer collaborator is unavailable or failed.
func FallbackHeuristic(question string) domain.QuestionAnalysis {
	lower := strings.ToLower(question)

	category := "general/analysis"
	for _, c := range categoryKeywords {
		if containsAny(lower, c.keywords) {
			category = c.category
			break
		}
	}

	complexity := 0.5
	criticality := 0.3

	if containsAny(lower, criticalityBumpWords) {
		criticality = 0.8
	}
	if containsAny(lower, complexityBumpWords) {
		complexity += 0.3
		if complexity > 1.0 {
			complexity = 1.0
		}
	}
	if containsAny(lower, complexityLoweringVocab) {
		complexity = 0.2
		criticality = 0.1
	}

	urgency := 0.3
	if containsAny(lower, []string{"urgent", "asap", "immediately"}) {
		urgency = 0.9
	}

	var clues []string
	for _, c := range categoryKeywords {
		if containsAny(lower, c.keywords) {
			clues = append(clues, c.category)
		}
	}

	return domain.QuestionAnalysis{
		Category:             category,
		Complexity:           complexity,
		ComplexityLevel:      domain.ComplexityLevelOf(complexity),
		Criticality:          criticality,
		CriticalityLevel:     domain.CriticalityLevelOf(criticality),
		Urgency:              urgency,
		ContextClues:         clues,
		ReasoningText:        "fallback heuristic keyword classification",
		ConfidenceOfAnalysis: 0.4,
		Source:               domain.SourceFallback,
	}
}

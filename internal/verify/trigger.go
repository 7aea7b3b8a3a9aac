package verify

import "strings"

// criticalKeywords triggers verification regardless of category when
// any appears in the (case-folded) question.
var criticalKeywords = []string{
	"security", "auth", "password", "token", "encrypt", "credential",
	"vulnerability", "exploit", "compliance", "gdpr", "hipaa", "audit",
	"pci", "secret",
}

// alwaysVerifyCategories are selector categories that always trigger
// verification regardless of keyword match.
var alwaysVerifyCategories = map[string]struct{}{
	"security":       {},
	"financial":      {},
	"production":     {},
	"data-migration": {},
	"compliance":     {},
}

// ShouldVerify decides whether cross-verification runs for this
// request. skipVerification is overridden by forceVerification, never
// the reverse.
func ShouldVerify(question, category string, forceVerification, skipVerification bool) bool {
	if forceVerification {
		return true
	}
	if skipVerification {
		return false
	}
	lower := strings.ToLower(question)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	_, always := alwaysVerifyCategories[category]
	return always
}

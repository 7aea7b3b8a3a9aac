package debate

import (
	"fmt"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertregistry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/instance"
)

const (
	// Truncation limits are in code points, not bytes, so multi-byte
	// text is never split mid-rune. Downstream workers rely on the
	// "…" marker to detect a truncated section.
	improvePromptTruncation  = 3000
	synthesisContributionCap = 2000
	ultrathinkMarker         = "ultrathink"
)

// truncateRunes truncates s to at most limit code points, appending
// the "…" marker when truncation occurred.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

// header renders the fixed header line every outbound prompt begins
// with; collaborating workers parse it to identify the addressee.
func header(d expertregistry.Descriptor) string {
	return fmt.Sprintf("You are %s (%s).", d.DisplayName, d.RoleTag)
}

// BuildProposePrompt renders a Round 1 propose prompt for expert d
// under the given instance spec.
func BuildProposePrompt(d expertregistry.Descriptor, question, workdir string, spec instance.Spec, prependUltrathink bool) string {
	var b []byte
	b = append(b, header(d)+"\n\n"...)
	if prependUltrathink {
		b = append(b, ultrathinkMarker+"\n\n"...)
	}
	b = append(b, "Question: "+question+"\n\n"...)
	b = append(b, "Working directory: "+workdir+"\n\n"...)
	if spec.ReplicaCount > 1 {
		b = append(b, fmt.Sprintf("This is instance %d of %d. %s\n\n", spec.InstanceIndex, spec.ReplicaCount, spec.Instructions)...)
	}
	b = append(b, "Instructions:\n"+
		"1. Understand the project by inspecting its structure and relevant files.\n"+
		"2. Read the files you need; run commands if that helps you verify your answer.\n"+
		"3. Provide a concrete, complete solution, not just an outline.\n"...)
	return string(b)
}

// BuildImprovePrompt renders a Round 2 improve prompt for expert d,
// reviewing (not rewriting) the best proposal.
func BuildImprovePrompt(d expertregistry.Descriptor, question, bestProposal string) string {
	truncated := truncateRunes(bestProposal, improvePromptTruncation)
	return fmt.Sprintf(`%s

Question: %s

The current best proposal is below. Review it and suggest concrete
improvements; do not rewrite it from scratch.

--- Best proposal ---
%s
--- end ---

Provide your improvements now.
`, header(d), question, truncated)
}

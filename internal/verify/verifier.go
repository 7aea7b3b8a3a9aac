// Package verify runs cross-verification over debate proposals:
// trigger logic, the three-layer per-proposal pipeline (fact-check,
// code pattern check, adversarial challenge), and the composite
// confidence formula.
package verify

import (
	"context"
	"time"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
)

// Options controls one verification run.
type Options struct {
	ForceVerification  bool
	SkipVerification   bool
	PerAttemptDeadline time.Time
	Catalogue          []Challenge // nil uses DefaultCatalogue()
}

// Verifier runs the three-layer cross-verification pipeline.
type Verifier struct {
	catalogue []Challenge
}

// New builds a Verifier with the given challenge catalogue, or the
// package default when catalogue is nil.
func New(catalogue []Challenge) *Verifier {
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	return &Verifier{catalogue: catalogue}
}

// Verify runs fact-check, code-pattern, and adversarial-challenge
// layers over every proposal in proposals, using workers (minus the
// proposal's own author) as reviewers. Too small a reviewer pool
// degrades to enabled=false rather than failing the debate.
func (v *Verifier) Verify(ctx context.Context, question string, proposals map[string]domain.Proposal, workers map[string]expertworker.Worker, opts Options) *domain.VerificationReport {
	if len(workers) < 2 {
		return &domain.VerificationReport{
			Enabled: false,
			PerProposal: map[string]domain.PerProposalVerification{},
		}
	}

	report := &domain.VerificationReport{
		Enabled:     true,
		PerProposal: make(map[string]domain.PerProposalVerification, len(proposals)),
	}

	var confidenceSum float64
	securityOverall := true

	for expertID, proposal := range proposals {
		if !proposal.Succeeded {
			continue
		}
		reviewers := otherWorkers(workers, expertID)
		perProposal := v.verifyOne(ctx, question, proposal.Text, reviewers, opts)
		report.PerProposal[expertID] = perProposal
		confidenceSum += perProposal.Confidence
		if !perProposal.SecurityVerified {
			securityOverall = false
		}
	}

	if len(report.PerProposal) > 0 {
		report.OverallConfidence = confidenceSum / float64(len(report.PerProposal))
	}
	report.SecurityVerifiedOverall = securityOverall

	return report
}

func (v *Verifier) verifyOne(ctx context.Context, question, proposalText string, reviewers map[string]expertworker.Worker, opts Options) domain.PerProposalVerification {
	var warnings []string

	factAccuracy, factWarnings := RunFactCheck(ctx, reviewers, question, proposalText, opts.PerAttemptDeadline)
	warnings = append(warnings, factWarnings...)

	codeCorrectness, issues := CodeCorrectness(proposalText)
	securityIssueFound := false
	for _, issue := range issues {
		if IsSecurityIssue(issue) {
			securityIssueFound = true
		}
	}

	catalogue := v.catalogue
	if opts.Catalogue != nil {
		catalogue = opts.Catalogue
	}

	passed, total, securityVerified, challengeWarnings := v.runChallenges(ctx, catalogue, question, proposalText, reviewers, opts, securityIssueFound)
	warnings = append(warnings, challengeWarnings...)

	securityScore := 0.5
	if securityVerified {
		securityScore = 1.0
	}

	challengeFraction := 0.0
	if total > 0 {
		challengeFraction = float64(passed) / 5.0
		if challengeFraction > 1 {
			challengeFraction = 1
		}
	}

	composite := 0.4*factAccuracy + 0.3*codeCorrectness + 0.2*securityScore + 0.1*challengeFraction
	penalty := 0.05 * float64(len(warnings))
	if penalty > 0.3 {
		penalty = 0.3
	}
	composite -= penalty
	if composite < 0.1 {
		composite = 0.1
	}

	return domain.PerProposalVerification{
		FactAccuracy:     factAccuracy,
		CodeCorrectness:  codeCorrectness,
		SecurityVerified: securityVerified,
		ChallengesPassed: passed,
		TotalChallenges:  total,
		Confidence:       composite,
		Warnings:         warnings,
	}
}

func (v *Verifier) runChallenges(ctx context.Context, catalogue []Challenge, question, proposalText string, reviewers map[string]expertworker.Worker, opts Options, priorSecurityIssue bool) (passed, total int, securityVerified bool, warnings []string) {
	securityVerified = !priorSecurityIssue

	for _, ch := range catalogue {
		_, reviewer, ok := ChallengeReviewerFor(ch, reviewers, "")
		if !ok {
			warnings = append(warnings, "no reviewer available for challenge "+ch.ID())
			continue
		}
		total++
		result, err := ch.Run(ctx, reviewer, question, proposalText, opts.PerAttemptDeadline)
		if err != nil {
			warnings = append(warnings, "challenge "+ch.ID()+" failed: "+err.Error())
			continue
		}
		if result.Passed {
			passed++
		}
		if ch.Category() == "security" && result.HighSeverity {
			securityVerified = false
		}
	}

	return passed, total, securityVerified, warnings
}

func otherWorkers(workers map[string]expertworker.Worker, exclude string) map[string]expertworker.Worker {
	out := make(map[string]expertworker.Worker, len(workers))
	for id, w := range workers {
		if id != exclude {
			out[id] = w
		}
	}
	return out
}

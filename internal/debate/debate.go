// Package debate runs the three-round consensus protocol: every
// selected expert proposes independently, an evaluator ranks the
// proposals and picks a leader, non-winning experts review and improve
// the leader's answer, and the runner synthesizes the final markdown
// text. Collaborators are wired through small interfaces; fan-out is
// errgroup-bounded and progress goes to a pluggable sink.
package debate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/cerrors"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/confidence"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/evaluator"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertregistry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/instance"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/parallel"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/progress"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/verify"
)

// minSucceededExperts is the Round 1 threshold below which the debate
// fails outright with InsufficientExperts.
const minSucceededExperts = 2

// Options controls one debate run; all fields are optional.
type Options struct {
	ForceVerification bool
	SkipVerification  bool
	Deadline          time.Time
	Ultrathink        bool
	Category          string
}

// Runner wires the collaborators the three rounds depend on.
type Runner struct {
	parallelRunner *parallel.Runner
	evaluator      evaluator.Evaluator
	verifier       *verify.Verifier
	registry       *expertregistry.Registry
	progress       *progress.Emitter
}

// New builds a Runner. evaluator may be nil, in which case every round
// uses evaluator.FallbackRank. progress may be nil, in which case
// events are dropped.
func New(pr *parallel.Runner, eval evaluator.Evaluator, verifier *verify.Verifier, reg *expertregistry.Registry, prog *progress.Emitter) *Runner {
	if prog == nil {
		prog = progress.New(nil)
	}
	return &Runner{parallelRunner: pr, evaluator: eval, verifier: verifier, registry: reg, progress: prog}
}

// Run executes the three-round protocol for plan against question,
// resolving workers through workers (one Worker per expert id in
// plan). It returns an *cerrors.InsufficientExpertsError when fewer
// than two experts produce a usable Round 1 proposal.
func (r *Runner) Run(ctx context.Context, question, workdir string, plan []domain.ExpertReplicaPlanEntry, workers expertworker.Registry, opts Options) (domain.DebateResult, error) {
	result := domain.DebateResult{Question: question, Workdir: workdir}

	r.progress.Phase(progress.PhaseRound1, 10, "running independent proposals")
	proposals, err := r.round1Propose(ctx, question, workdir, plan, workers, opts)
	if err != nil {
		return result, err
	}

	succeeded := succeededIDs(proposals)
	if len(succeeded) < minSucceededExperts {
		return result, &cerrors.InsufficientExpertsError{Succeeded: len(succeeded), Attempted: len(plan)}
	}

	result.Proposals = proposals
	result.ExpertsUsed = expertIDs(plan)

	r.progress.Phase(progress.PhaseEvaluating, 45, "ranking proposals")
	proposalTexts := make(map[string]string, len(succeeded))
	for _, id := range succeeded {
		proposalTexts[id] = proposals[id].Text
	}
	ranking, err := evaluator.RankWithFallback(ctx, r.evaluator, question, proposalTexts)
	if err != nil {
		return result, fmt.Errorf("rank proposals: %w", err)
	}
	result.Ranking = domain.Ranking{BestExpertID: ranking.BestExpertID, PerExpert: ranking.PerExpert, Notes: ranking.Notes, Fallback: ranking.Fallback}

	var verification *domain.VerificationReport
	if r.verifier != nil && verify.ShouldVerify(question, opts.Category, opts.ForceVerification, opts.SkipVerification) {
		r.progress.Phase(progress.PhaseVerifying, 55, "cross-verifying proposals")
		verification = r.verifier.Verify(ctx, question, proposals, resolveWorkers(workers, succeeded), verify.Options{
			ForceVerification:  opts.ForceVerification,
			SkipVerification:   opts.SkipVerification,
			PerAttemptDeadline: opts.Deadline,
		})
	}
	result.Verification = verification

	r.progress.Phase(progress.PhaseRound2, 65, "collecting improvements")
	improvements := r.round2Improve(ctx, question, workdir, succeeded, proposals, ranking.BestExpertID, workers, opts)
	result.Improvements = improvements

	r.progress.Phase(progress.PhaseSynthesizing, 85, "synthesizing final answer")
	result.FinalText = r.synthesize(ranking, proposals, improvements, verification)

	r.progress.Phase(progress.PhaseScoring, 95, "scoring confidence")
	result.Confidence = confidence.Score(confidence.Input{
		EvaluatorScore:     ranking.PerExpert[ranking.BestExpertID],
		Verification:       verification,
		PerExpertScores:    ranking.PerExpert,
		SurvivingExperts:   len(succeeded),
		RankingWasFallback: ranking.Fallback,
	})

	return result, nil
}

func (r *Runner) round1Propose(ctx context.Context, question, workdir string, plan []domain.ExpertReplicaPlanEntry, workers expertworker.Registry, opts Options) (map[string]domain.Proposal, error) {
	proposals := make(map[string]domain.Proposal, len(plan))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for planIdx, entry := range plan {
		entry := entry
		// The ultrathink marker goes to the first selected expert's
		// first instance only and passes through unchanged.
		ultrathink := opts.Ultrathink && planIdx == 0
		w, err := workers.Worker(entry.ExpertID)
		if err != nil {
			mu.Lock()
			proposals[entry.ExpertID] = domain.Proposal{ExpertID: entry.ExpertID, Succeeded: false, Origin: domain.OriginFailed}
			mu.Unlock()
			continue
		}

		descriptor, _ := r.registry.Get(entry.ExpertID)
		specs := instance.Build(entry.ExpertID, entry.ReplicaCount)

		r.progress.Expert(progress.PhaseRound1, entry.ExpertID, progress.StatusStarting, 10)
		g.Go(func() error {
			r.progress.Expert(progress.PhaseRound1, entry.ExpertID, progress.StatusRunning, 15)
			promptFor := func(spec instance.Spec) string {
				return BuildProposePrompt(descriptor, question, workdir, spec, ultrathink && spec.InstanceIndex == 1)
			}
			proposal := r.parallelRunner.Run(gctx, w, entry.ExpertID, specs, question, workdir, promptFor, opts.Deadline)
			status := progress.StatusCompleted
			if !proposal.Succeeded {
				status = progress.StatusFailed
			}
			r.progress.Expert(progress.PhaseRound1, entry.ExpertID, status, 40)
			mu.Lock()
			proposals[entry.ExpertID] = proposal
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return proposals, err
	}
	return proposals, nil
}

func (r *Runner) round2Improve(ctx context.Context, question, workdir string, succeeded []string, proposals map[string]domain.Proposal, bestID string, workers expertworker.Registry, opts Options) map[string]string {
	improvements := make(map[string]string, len(succeeded))
	var mu sync.Mutex

	bestText := proposals[bestID].Text

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range succeeded {
		id := id
		if id == bestID {
			continue
		}
		w, err := workers.Worker(id)
		if err != nil {
			continue
		}
		descriptor, _ := r.registry.Get(id)

		g.Go(func() error {
			specs := instance.Build(id, 1)
			promptFor := func(instance.Spec) string {
				return BuildImprovePrompt(descriptor, question, bestText)
			}
			proposal := r.parallelRunner.Run(gctx, w, id, specs, question, workdir, promptFor, opts.Deadline)
			if proposal.Succeeded {
				mu.Lock()
				improvements[id] = proposal.Text
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return improvements
}

// synthesize renders the structured markdown final text: header with
// the winning expert and score, verification section when present, the
// winning proposal verbatim, per-contributor enhancements, and the
// per-expert score table. The section order is stable so downstream
// consumers can parse it.
func (r *Runner) synthesize(ranking evaluator.Ranking, proposals map[string]domain.Proposal, improvements map[string]string, verification *domain.VerificationReport) string {
	var b strings.Builder

	bestScore := ranking.PerExpert[ranking.BestExpertID]
	fmt.Fprintf(&b, "# Consensus Answer (best expert: %s, score: %.0f/100)\n\n", ranking.BestExpertID, bestScore)

	if verification != nil && verification.Enabled {
		pv, ok := verification.PerProposal[ranking.BestExpertID]
		b.WriteString("## Verification\n\n")
		if ok {
			fmt.Fprintf(&b, "Confidence: %.2f. Security verified: %t. Challenges passed: %d/%d.\n", pv.Confidence, pv.SecurityVerified, pv.ChallengesPassed, pv.TotalChallenges)
			if len(pv.Warnings) > 0 {
				fmt.Fprintf(&b, "Warnings: %s\n", strings.Join(pv.Warnings, "; "))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Solution\n\n")
	b.WriteString(proposals[ranking.BestExpertID].Text)
	b.WriteString("\n\n")

	if len(improvements) > 0 {
		b.WriteString("## Enhancements from other experts\n\n")
		ids := make([]string, 0, len(improvements))
		for id := range improvements {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", id, truncateRunes(improvements[id], synthesisContributionCap))
		}
	}

	b.WriteString("## Per-expert evaluation\n\n")
	b.WriteString("| Expert | Score |\n|---|---|\n")
	scoredIDs := make([]string, 0, len(ranking.PerExpert))
	for id := range ranking.PerExpert {
		scoredIDs = append(scoredIDs, id)
	}
	sort.Strings(scoredIDs)
	for _, id := range scoredIDs {
		fmt.Fprintf(&b, "| %s | %.0f |\n", id, ranking.PerExpert[id])
	}

	return b.String()
}

func succeededIDs(proposals map[string]domain.Proposal) []string {
	ids := make([]string, 0, len(proposals))
	for id, p := range proposals {
		if p.Succeeded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func expertIDs(plan []domain.ExpertReplicaPlanEntry) []string {
	ids := make([]string, 0, len(plan))
	for _, e := range plan {
		ids = append(ids, e.ExpertID)
	}
	return ids
}

func resolveWorkers(reg expertworker.Registry, ids []string) map[string]expertworker.Worker {
	out := make(map[string]expertworker.Worker, len(ids))
	for _, id := range ids {
		w, err := reg.Worker(id)
		if err != nil {
			continue
		}
		out[id] = w
	}
	return out
}

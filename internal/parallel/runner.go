// Package parallel fans replicas of a single expert out concurrently
// and merges their outputs into one Proposal: a lone success passes
// through, two or more successes go through a same-expert synthesis
// call, and a failed synthesis falls back to the longest replica text.
package parallel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/instance"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/retry"
)

const (
	synthesisSeed        = 12345
	synthesisTemperature = 0.5
	synthesisFocus       = "synthesizer"
	perInstanceSummaryCap = 2000 // code points per replica summary
)

// Runner fans out a set of instance.Specs for one expert through a
// Worker and synthesizes the result.
type Runner struct {
	retryController *retry.Controller
	retryPolicy     retry.Policy
}

// New builds a Runner.
func New(rc *retry.Controller, policy retry.Policy) *Runner {
	return &Runner{retryController: rc, retryPolicy: policy}
}

type replicaResult struct {
	index int
	text  string
	err   error
	dur   time.Duration
}

// Run fans replicas of expert out concurrently, collects successful
// outputs, and applies the completion policy: zero successes yields a
// failed Proposal, one passes through, two or more are synthesized.
func (r *Runner) Run(ctx context.Context, w expertworker.Worker, expertID string, specs []instance.Spec, question, workdir string, promptFor func(instance.Spec) string, deadline time.Time) domain.Proposal {
	started := time.Now()

	results := make([]replicaResult, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			t0 := time.Now()
			prompt := promptFor(spec)
			text, err := retry.Execute(gctx, r.retryController, r.retryPolicy, nil, func(attemptCtx context.Context) (string, error) {
				instCtx := &expertworker.InstanceContext{
					Seed:          spec.Seed,
					Temperature:   spec.Temperature,
					InstanceIndex: spec.InstanceIndex,
					ReplicaCount:  spec.ReplicaCount,
					FocusLabel:    spec.FocusLabel,
				}
				return w.Invoke(attemptCtx, prompt, workdir, instCtx, deadline)
			})
			results[i] = replicaResult{index: i, text: text, err: err, dur: time.Since(t0)}
			return nil // per-replica failure is isolated, never aborts the group
		})
	}
	_ = g.Wait()

	var successes []replicaResult
	for _, res := range results {
		if res.err == nil && res.text != "" {
			successes = append(successes, res)
		}
	}

	switch len(successes) {
	case 0:
		return domain.Proposal{
			ExpertID:            expertID,
			Succeeded:           false,
			ProducedAtMonotonic: started,
			DurationMs:          time.Since(started).Milliseconds(),
			ReplicaCount:        len(specs),
			Origin:              domain.OriginFailed,
		}
	case 1:
		return domain.Proposal{
			ExpertID:            expertID,
			Text:                successes[0].text,
			Succeeded:           true,
			ProducedAtMonotonic: started,
			DurationMs:          time.Since(started).Milliseconds(),
			ReplicaCount:        len(specs),
			Origin:              domain.OriginSingle,
		}
	default:
		synthText, err := r.synthesize(ctx, w, question, successes, workdir, deadline)
		if err == nil {
			return domain.Proposal{
				ExpertID:            expertID,
				Text:                synthText,
				Succeeded:           true,
				ProducedAtMonotonic: started,
				DurationMs:          time.Since(started).Milliseconds(),
				ReplicaCount:        len(specs),
				Origin:              domain.OriginSynthesized,
			}
		}
		longest := longestText(successes)
		return domain.Proposal{
			ExpertID:            expertID,
			Text:                longest,
			Succeeded:           true,
			ProducedAtMonotonic: started,
			DurationMs:          time.Since(started).Milliseconds(),
			ReplicaCount:        len(specs),
			Origin:              domain.OriginFallbackLongest,
		}
	}
}

func longestText(results []replicaResult) string {
	best := ""
	for _, r := range results {
		if len([]rune(r.text)) > len([]rune(best)) {
			best = r.text
		}
	}
	return best
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

func (r *Runner) synthesize(ctx context.Context, w expertworker.Worker, question string, successes []replicaResult, workdir string, deadline time.Time) (string, error) {
	sort.Slice(successes, func(i, j int) bool { return successes[i].index < successes[j].index })

	prompt := fmt.Sprintf("You previously produced %d independent drafts for the question below. Synthesize them into one coherent, best answer.\n\nQuestion: %s\n\n", len(successes), question)
	for _, res := range successes {
		prompt += fmt.Sprintf("--- Draft %d ---\n%s\n\n", res.index+1, truncateRunes(res.text, perInstanceSummaryCap))
	}
	prompt += "Produce the single synthesized answer now, without referring to \"drafts\"."

	instCtx := &expertworker.InstanceContext{
		Seed:          synthesisSeed,
		Temperature:   synthesisTemperature,
		InstanceIndex: 0,
		ReplicaCount:  len(successes),
		FocusLabel:    synthesisFocus,
	}

	return retry.Execute(ctx, r.retryController, r.retryPolicy, nil, func(attemptCtx context.Context) (string, error) {
		return w.Invoke(attemptCtx, prompt, workdir, instCtx, deadline)
	})
}

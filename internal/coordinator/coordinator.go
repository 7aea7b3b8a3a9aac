// Package coordinator is the public entry point of the consensus
// engine. A Coordinator drives cache lookup, expert selection, the
// three-round debate, confidence scoring, and cache store, emitting
// progress events and persisting a structured per-request log. It is
// a long-lived object holding shared collaborators; anything needing
// per-request state (such as the caller's progress sink) is built
// fresh per call.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/cerrors"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/config"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/debate"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/evaluator"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertregistry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertworker"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/learning"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/obslog"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/parallel"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/progress"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/resultcache"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/retry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/selector"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/telemetry"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/verify"
)

// manifestCandidates are checked, in order, for the dependencyChanged
// invalidation trigger. The first one present under workdir wins.
var manifestCandidates = []string{"go.mod", "package.json", "Cargo.toml", "requirements.txt", "go.sum"}

// Options controls one debate request.
type Options struct {
	BypassCache       bool
	ForceVerification bool
	SkipVerification  bool
	DeadlineMs        int64
	ProgressSink      progress.Sink
	Ultrathink        bool
}

// Coordinator owns no request state between calls; every Debate call
// builds its own per-request debate.Runner so a caller-supplied
// progress sink is wired fresh each time rather than baked in at
// construction.
type Coordinator struct {
	registry        *expertregistry.Registry
	selector        *selector.Selector
	parallelRunner  *parallel.Runner
	evaluatorImpl   evaluator.Evaluator
	verifier        *verify.Verifier
	cache           *resultcache.Cache
	workers         expertworker.Registry
	learningSink    learning.Sink
	metrics         *telemetry.Metrics
	retryController *retry.Controller
	cfg             *config.Config
	logDir          string
	log             *logrus.Logger
}

// New builds a Coordinator from its already-constructed collaborators.
// metrics, learningSink, and cache may be nil to disable their
// respective concerns; logDir empty disables the per-request JSON log.
func New(
	cfg *config.Config,
	reg *expertregistry.Registry,
	sel *selector.Selector,
	pr *parallel.Runner,
	eval evaluator.Evaluator,
	verifier *verify.Verifier,
	cache *resultcache.Cache,
	workers expertworker.Registry,
	learningSink learning.Sink,
	metrics *telemetry.Metrics,
	retryController *retry.Controller,
	logDir string,
	log *logrus.Logger,
) *Coordinator {
	if learningSink == nil {
		learningSink = learning.NopSink{}
	}
	if log == nil {
		log = obslog.New("info")
	}
	return &Coordinator{
		registry:        reg,
		selector:        sel,
		parallelRunner:  pr,
		evaluatorImpl:   eval,
		verifier:        verifier,
		cache:           cache,
		workers:         workers,
		learningSink:    learningSink,
		metrics:         metrics,
		retryController: retryController,
		cfg:             cfg,
		logDir:          logDir,
		log:             log,
	}
}

// Debate runs the full pipeline for one question. expertSpec may be
// empty to use the analyzer path.
func (c *Coordinator) Debate(ctx context.Context, question, workdir, expertSpec string, opts Options) (domain.DebateResult, error) {
	requestID := uuid.NewString()
	start := time.Now()
	log := obslog.Component(c.log, "coordinator").WithField("requestId", requestID)
	emitter := progress.New(opts.ProgressSink)

	emitter.Phase(progress.PhaseInitializing, 0, "initializing debate")

	question = strings.TrimSpace(question)
	if question == "" {
		err := &cerrors.EmptyQuestionError{}
		c.writeFailedLog(requestID, question, workdir, err)
		return domain.DebateResult{}, err
	}

	workdir = resolveWorkdir(workdir)

	overall := c.overallDeadline(opts)
	deadline := start.Add(overall)
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	fingerprint := resultcache.ProjectFingerprint(workdir, c.fingerprintMaxFiles())
	manifestMtime := firstManifestMtime(workdir)

	// Selection must run before the cache key can be built (the key
	// depends on the chosen category/complexity/replica plan), so it
	// happens here even though the CacheChecking phase is reported to
	// the progress sink first, preserving the externally observed
	// phase order.
	plan, err := c.selector.Select(dctx, question, workdir, expertSpec)
	if err != nil {
		log.WithError(err).Warn("selector returned an error, degrading to its own fallback result")
	}
	if plan.TotalExperts() == 0 {
		structErr := &cerrors.InsufficientExpertsError{Succeeded: 0, Attempted: 0}
		c.writeFailedLog(requestID, question, workdir, structErr)
		if c.metrics != nil {
			c.metrics.InsufficientExperts.Inc()
		}
		return domain.DebateResult{}, structErr
	}

	useAnalyzer := expertSpec == ""
	keyInput := resultcache.KeyInput{
		NormalizedQuestion: resultcache.NormalizeQuestion(question),
		Category:           plan.Analysis.Category,
		ComplexityLevel:    plan.Analysis.ComplexityLevel,
		Workdir:            workdir,
		ExpertReplicaPlan:  plan.Entries,
		UseAnalyzer:        useAnalyzer,
		ProjectFingerprint: fingerprint,
	}
	cacheKey := resultcache.Key(keyInput)
	expertIDs := planExpertIDs(plan)

	emitter.Phase(progress.PhaseCacheChecking, 5, "checking result cache")
	if !opts.BypassCache && c.cache != nil {
		lookupCtx := resultcache.Context{
			ProjectFingerprint: fingerprint,
			Workdir:            workdir,
			ExpertIDs:          expertIDs,
			BypassCache:        opts.BypassCache,
			ManifestMtime:      manifestMtime,
		}
		if cached, ok := c.cache.Lookup(dctx, cacheKey, lookupCtx); ok {
			cached.ResponseTimeMs = time.Since(start).Milliseconds()
			c.cache.ObserveResponseTime(true, cached.ResponseTimeMs)
			emitter.Phase(progress.PhaseDone, 100, "served from cache")
			log.WithField("cacheKey", cacheKey).Info("cache hit")
			c.recordCacheMetrics(true)
			if c.metrics != nil {
				c.metrics.CacheTokensSaved.Add(float64(estimateTokens(cached.FinalText)))
			}
			c.writeRequestLog(requestID, cached, false, nil)
			return cached, nil
		}
		c.recordCacheMetrics(false)
	}

	emitter.Phase(progress.PhaseSelecting, 10, fmt.Sprintf("selected %d expert(s)", plan.TotalExperts()))
	for _, w := range plan.Warnings {
		log.Warn(w)
	}

	runner := debate.New(c.parallelRunner, c.evaluatorImpl, c.verifier, c.registry, emitter)
	result, err := runner.Run(dctx, question, workdir, plan.Entries, c.workers, debate.Options{
		ForceVerification: opts.ForceVerification,
		SkipVerification:  opts.SkipVerification,
		Deadline:          deadline,
		Ultrathink:        opts.Ultrathink,
		Category:          plan.Analysis.Category,
	})
	if err != nil {
		boundary := classifyBoundaryError(dctx, err)
		c.writeFailedLog(requestID, question, workdir, boundary)
		if c.metrics != nil {
			var insufficient *cerrors.InsufficientExpertsError
			if errors.As(boundary, &insufficient) {
				c.metrics.InsufficientExperts.Inc()
			}
			c.metrics.DebateDurationSeconds.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		}
		return domain.DebateResult{}, boundary
	}

	result.Question = question
	result.Workdir = workdir
	result.SelectionAnalysis = plan.Analysis
	result.ResponseTimeMs = time.Since(start).Milliseconds()
	result.FromCache = false

	emitter.Phase(progress.PhaseStoring, 97, "storing result")
	if !opts.BypassCache && c.cache != nil {
		entry := resultcache.Entry{
			Key:                  cacheKey,
			Result:               result,
			StoredAt:             time.Now(),
			Workdir:              workdir,
			ProjectFingerprint:   fingerprint,
			ExpertIDs:            expertIDs,
			ManifestMtime:        manifestMtime,
			EstimatedTokens:      estimateTokens(result.FinalText),
			EstimatedCostDollars: estimateCost(estimateTokens(result.FinalText), plan.Entries, c.registry, c.cfg),
			ObservedConfidence:   result.Confidence.Score / 100,
		}
		c.cache.Store(dctx, cacheKey, entry)
		c.cache.RecordProjectState(workdir)
		if c.metrics != nil {
			c.metrics.CacheStores.Inc()
			c.metrics.CacheEntries.Set(float64(c.cache.Len()))
		}
	}
	if c.cache != nil {
		c.cache.ObserveResponseTime(false, result.ResponseTimeMs)
	}

	c.emitLearning(result, plan)
	c.recordMetrics(result, plan, start)

	emitter.Phase(progress.PhaseDone, 100, "debate complete")
	c.writeRequestLog(requestID, result, false, nil)

	return result, nil
}

func (c *Coordinator) overallDeadline(opts Options) time.Duration {
	if opts.DeadlineMs > 0 {
		return time.Duration(opts.DeadlineMs) * time.Millisecond
	}
	if c.cfg != nil && c.cfg.Debate.OverallDeadline > 0 {
		return c.cfg.Debate.OverallDeadline
	}
	return 60 * time.Minute
}

func (c *Coordinator) fingerprintMaxFiles() int {
	if c.cfg != nil && c.cfg.Cache.MaxFiles > 0 {
		return c.cfg.Cache.MaxFiles
	}
	return 50
}

func (c *Coordinator) emitLearning(result domain.DebateResult, plan selector.Plan) {
	durations := make(map[string]int64, len(result.Proposals))
	for id, p := range result.Proposals {
		durations[id] = p.DurationMs
	}
	record := learning.Record{
		Timestamp:           time.Now(),
		Category:            plan.Analysis.Category,
		ExpertsUsed:         result.ExpertsUsed,
		Winner:              result.Ranking.BestExpertID,
		PerExpertScore:      result.Ranking.PerExpert,
		PerExpertDurationMs: durations,
		CostReductionPct:    0,
	}
	if err := c.learningSink.Emit(record); err != nil {
		obslog.Component(c.log, "coordinator").WithError(err).Warn("learning sink emit failed (non-fatal)")
	}
}

func (c *Coordinator) recordCacheMetrics(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHits.Inc()
		return
	}
	c.metrics.CacheMisses.Inc()
}

func (c *Coordinator) recordMetrics(result domain.DebateResult, plan selector.Plan, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ExpertsSelected.Observe(float64(plan.TotalExperts()))
	c.metrics.DebateDurationSeconds.WithLabelValues("success").Observe(time.Since(start).Seconds())
	if result.Verification != nil && result.Verification.Enabled {
		c.metrics.VerificationTriggered.Inc()
		c.metrics.VerificationConfidence.Observe(result.Verification.OverallConfidence)
	}
}

// classifyBoundaryError maps a debate-runner failure onto the
// structural error kinds exposed at the boundary. Structural errors
// that already carry the right type (InsufficientExpertsError) pass
// through unchanged.
func classifyBoundaryError(ctx context.Context, err error) error {
	var insufficient *cerrors.InsufficientExpertsError
	if errors.As(err, &insufficient) {
		return err
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &cerrors.DeadlineExceededError{Phase: "debate"}
		}
		return &cerrors.CancelledError{Phase: "debate"}
	}
	return err
}

func resolveWorkdir(workdir string) string {
	if workdir == "" || workdir == "current" {
		if cwd, err := os.Getwd(); err == nil {
			return cwd
		}
		return "."
	}
	return workdir
}

func planExpertIDs(plan selector.Plan) []string {
	ids := make([]string, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		ids = append(ids, e.ExpertID)
	}
	return ids
}

func firstManifestMtime(workdir string) time.Time {
	for _, name := range manifestCandidates {
		if t := resultcache.ManifestMtime(filepath.Join(workdir, name)); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// estimateTokens approximates the token count of the synthesized
// answer as ceil(codepoints / 4).
func estimateTokens(finalText string) int64 {
	n := len([]rune(finalText))
	return int64(math.Ceil(float64(n) / 4.0))
}

// estimateCost applies CostConfig.DollarsPerToken, scaled by the
// average RelativeCost of the experts actually selected.
func estimateCost(tokens int64, plan []domain.ExpertReplicaPlanEntry, reg *expertregistry.Registry, cfg *config.Config) float64 {
	rate := 0.000003
	if cfg != nil && cfg.Cost.DollarsPerToken > 0 {
		rate = cfg.Cost.DollarsPerToken
	}
	if reg == nil || len(plan) == 0 {
		return float64(tokens) * rate
	}
	var totalCost float64
	var n int
	for _, e := range plan {
		if d, ok := reg.Get(e.ExpertID); ok {
			totalCost += d.RelativeCost
			n++
		}
	}
	multiplier := 1.0
	if n > 0 && totalCost > 0 {
		multiplier = totalCost / float64(n)
	}
	return float64(tokens) * rate * multiplier
}

// persistedLog is the shape written to one debate_<nanos>.json file
// per request.
type persistedLog struct {
	RequestID string               `json:"requestId"`
	Timestamp time.Time            `json:"timestamp"`
	Question  string               `json:"question,omitempty"`
	Workdir   string               `json:"workdir,omitempty"`
	Result    *domain.DebateResult `json:"result,omitempty"`
	Failed    bool                 `json:"failed"`
	Error     string               `json:"error,omitempty"`
	Retry     *retry.Snapshot      `json:"retryStats,omitempty"`
}

func (c *Coordinator) writeRequestLog(requestID string, result domain.DebateResult, failed bool, failErr error) {
	entry := persistedLog{
		RequestID: requestID,
		Timestamp: time.Now(),
		Question:  result.Question,
		Workdir:   result.Workdir,
		Result:    &result,
		Failed:    failed,
	}
	if failErr != nil {
		entry.Error = failErr.Error()
	}
	if c.retryController != nil {
		snap := c.retryController.Stats().Snapshot()
		entry.Retry = &snap
	}
	c.persistLog(entry)
}

func (c *Coordinator) writeFailedLog(requestID, question, workdir string, err error) {
	entry := persistedLog{
		RequestID: requestID,
		Timestamp: time.Now(),
		Question:  question,
		Workdir:   workdir,
		Failed:    true,
		Error:     err.Error(),
	}
	if c.retryController != nil {
		snap := c.retryController.Stats().Snapshot()
		entry.Retry = &snap
	}
	c.persistLog(entry)
}

func (c *Coordinator) persistLog(entry persistedLog) {
	if c.logDir == "" {
		return
	}
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		obslog.Component(c.log, "coordinator").WithError(err).Warn("failed to create log directory")
		return
	}
	buf, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		obslog.Component(c.log, "coordinator").WithError(err).Warn("failed to marshal request log")
		return
	}
	name := fmt.Sprintf("debate_%d.json", time.Now().UnixNano())
	path := filepath.Join(c.logDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		obslog.Component(c.log, "coordinator").WithError(err).Warn("failed to write request log")
	}
}

// Command consensusd is a thin CLI entry point over the consensus
// engine core: it wires a subprocess-backed ExpertWorker per
// registered expert (or an in-process mock for dry runs), an optional
// Redis-mirrored result cache, and prints progress events to stderr
// while the final answer and confidence report go to stdout.
//
// It deliberately carries none of the pipeline logic itself; that all
// lives in internal/coordinator and its collaborators.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/config"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/coordinator"
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

func main() {
	_ = godotenv.Load()

	var (
		workdir           = flag.String("workdir", "current", "working directory context for the debate")
		expertSpec        = flag.String("experts", "", "direct expert spec, e.g. \"k1:2,k4,k5:3\" (empty = analyzer selects)")
		workerCommand     = flag.String("worker-cmd", "", "shell command+args run for every expert subprocess; empty uses mock workers")
		arbiterID         = flag.String("arbiter", "", "expert id whose worker ranks proposals and classifies questions (empty = fallback ranking/heuristic)")
		maxInFlight       = flag.Int64("max-in-flight", 0, "process-wide cap on concurrent expert invocations (0 = 2x CPU count)")
		catalogPath       = flag.String("catalog", "", "path to an expert catalog YAML file (empty = built-in default)")
		logDir            = flag.String("log-dir", "", "directory to write one debate_<nanos>.json per request (empty disables)")
		learningPath      = flag.String("learning-log", "", "append-only learning sink file path (empty disables)")
		bypassCache       = flag.Bool("bypass-cache", false, "skip cache lookup and always run fresh")
		forceVerification = flag.Bool("force-verification", false, "force cross-verification regardless of category/keywords")
		skipVerification  = flag.Bool("skip-verification", false, "suppress cross-verification (overridden by -force-verification)")
		ultrathink        = flag.Bool("ultrathink", false, "prepend the ultrathink marker to the first expert's prompt")
		deadlineMs        = flag.Int64("deadline-ms", 0, "overall deadline override in milliseconds (0 = config default)")
		jsonOutput        = flag.Bool("json", false, "print the full DebateResult as JSON instead of just the final text")
		enableMetrics     = flag.Bool("metrics", false, "register Prometheus collectors against the default registry")
	)
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))

	cfg := config.Load()
	log := obslog.New(cfg.LogLevel)

	catalog := *catalogPath
	if catalog == "" {
		catalog = cfg.Registry.CatalogPath
	}
	reg, err := expertregistry.Load(catalog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load expert catalog:", err)
		os.Exit(1)
	}

	workers := make(map[string]expertworker.Worker, reg.Len())
	for _, d := range reg.GetAll() {
		if *workerCommand == "" {
			workers[d.ID] = expertworker.NewMockWorker(d.ID, fmt.Sprintf("(mock) %s has no strong opinion without a real -worker-cmd configured.", d.DisplayName))
			continue
		}
		parts := strings.Fields(*workerCommand)
		workers[d.ID] = expertworker.NewSubprocessWorker(d.ID, parts[0], parts[1:]...)
	}
	limiter := expertworker.NewInvocationLimiter(*maxInFlight)
	workerRegistry := expertworker.NewLimitedRegistry(expertworker.NewStaticRegistry(workers, nil), limiter)

	var metrics *telemetry.Metrics
	if *enableMetrics {
		metrics = telemetry.New(prometheus.DefaultRegisterer)
	}

	retryController := retry.New(obslog.Component(log, "retry"))
	if metrics != nil {
		retryController.WithSink(func(e retry.Event) {
			switch e.Type {
			case "attempt":
				metrics.RetryAttempts.WithLabelValues(string(e.Kind)).Inc()
			case "retry":
				metrics.RetryDelaySeconds.Observe(e.Delay.Seconds())
			case "failure":
				metrics.RetryExhausted.Inc()
			}
		})
	}
	parallelRunner := parallel.New(retryController, retryPolicyFrom(cfg))
	verifier := verify.New(nil)

	var eval evaluator.Evaluator
	var analyzer selector.Analyzer
	if *arbiterID != "" {
		arbiter, err := workerRegistry.Worker(*arbiterID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "resolve arbiter worker:", err)
			os.Exit(1)
		}
		eval = evaluator.NewWorkerEvaluator(arbiter, cfg.Retry.PerAttemptTimeout)
		analyzer = selector.NewWorkerAnalyzer(arbiter, cfg.Retry.PerAttemptTimeout)
	}
	sel := selector.New(reg, analyzer)

	var cache *resultcache.Cache
	if cfg.Cache.Enabled {
		tracker := resultcache.NewProjectStateTracker()
		invalidator := resultcache.NewInvalidator(cfg.Cache.MaxAge, cfg.Cache.MinConfidence, tracker)
		var mirror *resultcache.RedisMirror
		if cfg.Cache.RedisEnabled {
			mirror = resultcache.NewRedisMirror(cfg.Redis)
		}
		cache = resultcache.New(cfg.Cache.MaxEntries, invalidator, cfg.Cache.PersistPath, mirror, obslog.Component(log, "resultcache"))
	}

	var learningSink learning.Sink
	if *learningPath != "" {
		sink, err := learning.NewFileSink(*learningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open learning log:", err)
			os.Exit(1)
		}
		defer sink.Close()
		learningSink = sink
	}

	coord := coordinator.New(cfg, reg, sel, parallelRunner, eval, verifier, cache, workerRegistry, learningSink, metrics, retryController, *logDir, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progressSink := func(ev progress.Event) {
		if ev.ExpertID != "" {
			fmt.Fprintf(os.Stderr, "[%3d%%] %-14s %-8s %s\n", ev.Percentage, ev.Phase, ev.ExpertID, ev.Status)
			return
		}
		fmt.Fprintf(os.Stderr, "[%3d%%] %-14s %s\n", ev.Percentage, ev.Phase, ev.Message)
	}

	result, err := coord.Debate(ctx, question, *workdir, *expertSpec, coordinator.Options{
		BypassCache:       *bypassCache,
		ForceVerification: *forceVerification,
		SkipVerification:  *skipVerification,
		DeadlineMs:        *deadlineMs,
		ProgressSink:      progressSink,
		Ultrathink:        *ultrathink,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "debate failed:", err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	fmt.Println(result.FinalText)
	fmt.Fprintf(os.Stderr, "\nconfidence: %.0f/100 (%s)\n", result.Confidence.Score, result.Confidence.Level)
}

func retryPolicyFrom(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxRetries:        cfg.Retry.MaxRetries,
		InitialDelay:      cfg.Retry.InitialDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		JitterFraction:    cfg.Retry.JitterFraction,
		PerAttemptTimeout: cfg.Retry.PerAttemptTimeout,
	}
}

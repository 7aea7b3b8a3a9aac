package expertworker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/retry"
)

// SubprocessWorker invokes an external command-line AI assistant per
// request, the default production transport. It injects seed/
// temperature/instanceIndex/replicaCount into the child's environment
// and kills the child on context cancellation.
type SubprocessWorker struct {
	name    string
	command string
	args    []string
}

// NewSubprocessWorker builds a Worker that runs `command args... ` and
// pipes fullPrompt on stdin, reading the response from stdout.
func NewSubprocessWorker(name, command string, args ...string) *SubprocessWorker {
	return &SubprocessWorker{name: name, command: command, args: args}
}

func (w *SubprocessWorker) Name() string { return w.name }

var errPatterns = []struct {
	kind    retry.Kind
	pattern *regexp.Regexp
}{
	{retry.KindAuth, regexp.MustCompile(`(?i)unauthoriz|invalid api key|authentication failed`)},
	{retry.KindRateLimit, regexp.MustCompile(`(?i)rate limit|too many requests|429`)},
	{retry.KindTimeout, regexp.MustCompile(`(?i)timed? ?out|deadline exceeded`)},
	{retry.KindTransient5xx, regexp.MustCompile(`(?i)\b5\d\d\b|internal server error|service unavailable|bad gateway`)},
	{retry.KindPermanent4xx, regexp.MustCompile(`(?i)\b4\d\d\b|bad request`)},
	{retry.KindNetwork, regexp.MustCompile(`(?i)connection refused|no such host|network is unreachable|broken pipe`)},
}

func classifyStderr(stderr string) retry.Kind {
	for _, p := range errPatterns {
		if p.pattern.MatchString(stderr) {
			return p.kind
		}
	}
	return retry.KindUnknown
}

// Invoke runs the subprocess with the given prompt on stdin.
func (w *SubprocessWorker) Invoke(ctx context.Context, fullPrompt string, workdir string, instance *InstanceContext, deadline time.Time) (string, error) {
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, w.command, w.args...)
	if workdir != "" && workdir != "current" {
		cmd.Dir = workdir
	}
	cmd.Stdin = bytes.NewBufferString(fullPrompt)

	cmd.Env = append(os.Environ(), envFor(instance)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", &retry.Classified{Kind: retry.KindTimeout, Err: fmt.Errorf("%s: %w", w.name, ctx.Err())}
		}
		kind := classifyStderr(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &retry.Classified{Kind: kind, Err: fmt.Errorf("%s exited %d: %s", w.name, exitErr.ExitCode(), stderr.String())}
		}
		return "", &retry.Classified{Kind: kind, Err: fmt.Errorf("%s: %w: %s", w.name, err, stderr.String())}
	}

	return stdout.String(), nil
}

func envFor(instance *InstanceContext) []string {
	if instance == nil {
		return nil
	}
	return []string{
		"EXPERT_SEED=" + strconv.FormatInt(instance.Seed, 10),
		"EXPERT_TEMPERATURE=" + strconv.FormatFloat(instance.Temperature, 'f', 2, 64),
		"EXPERT_INSTANCE_INDEX=" + strconv.Itoa(instance.InstanceIndex),
		"EXPERT_REPLICA_COUNT=" + strconv.Itoa(instance.ReplicaCount),
		"EXPERT_FOCUS_LABEL=" + instance.FocusLabel,
	}
}

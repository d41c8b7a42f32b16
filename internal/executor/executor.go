// Package executor runs one task end to end: acquire a dedicated git
// worktree, invoke the Assistant CLI inside it, capture the result, and
// always release the worktree on exit. One synchronous subprocess
// invocation per task — wise-magpie runs one task per tick, not an
// open-ended agentic loop.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/4beshinji/wise-magpie/internal/ai"
	"github.com/4beshinji/wise-magpie/internal/sandbox"
	"github.com/4beshinji/wise-magpie/internal/types"
)

// maxSummaryBytes caps the stderr tail kept on failure and the fallback
// truncation length on success.
const maxSummaryBytes = 4096

// averageCostUSD and averageTokens are the model-tier cost/token
// fallbacks used when the Assistant CLI doesn't emit its own usage line.
var averageCostUSD = map[types.Model]float64{
	types.ModelHaiku:  0.05,
	types.ModelSonnet: 0.35,
	types.ModelOpus:   1.20,
}

var averageTokens = map[types.Model]int64{
	types.ModelHaiku:  15000,
	types.ModelSonnet: 40000,
	types.ModelOpus:   80000,
}

// Config configures the Assistant CLI invocation.
type Config struct {
	// Binary is the Assistant CLI executable name, looked up on PATH.
	Binary string
	// ExtraFlags are appended to the invocation, from assistant.extra_flags.
	ExtraFlags []string
	// Timeout bounds a single task's execution.
	Timeout time.Duration
	// SandboxRoot is the directory under which task worktrees are created.
	SandboxRoot string
	// Summarizer condenses long output into result_summary; nil disables
	// AI summarization and falls back to plain truncation.
	Summarizer *ai.Summarizer
}

// DefaultConfig returns wise-magpie's default executor configuration.
func DefaultConfig() Config {
	return Config{
		Binary:      "claude",
		Timeout:     30 * time.Minute,
		SandboxRoot: ".wise-magpie/sandboxes",
	}
}

// Result is the explicit outcome variant the Scheduler switches on. A
// failed run is a value, not an error: Run returns a non-nil error only
// when the task never started.
type Result struct {
	Status        types.Status // StatusAwaitingReview or StatusFailed
	ResultSummary string
	CostUSD       float64
	Tokens        int64
	Branch        string
}

// Executor runs tasks inside isolated git worktrees.
type Executor struct {
	cfg Config
}

// New builds an Executor from cfg, verifying the Assistant CLI binary is
// on PATH.
func New(cfg Config) (*Executor, error) {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = ".wise-magpie/sandboxes"
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("executor: %w: %s", ErrAssistantNotFound, cfg.Binary)
	}
	return &Executor{cfg: cfg}, nil
}

// Run acquires a worktree for task, invokes the Assistant CLI with model,
// and always releases the worktree before returning, whatever the exit
// path. The branch is left in place for review.
func (e *Executor) Run(ctx context.Context, repoRoot string, task *types.Task, model types.Model, baseBranch string) (Result, error) {
	branch := task.BranchName
	if branch == "" {
		branch = types.BranchNameFor(task.Title, task.ID)
	}
	handle, err := sandbox.Acquire(ctx, repoRoot, e.cfg.SandboxRoot, task.ID, branch, baseBranch)
	if err != nil {
		return Result{}, fmt.Errorf("executor: acquire sandbox: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = handle.Release(releaseCtx)
	}()

	prompt, err := BuildPrompt(task)
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	args := e.buildArgs(model, prompt)
	cmd := exec.CommandContext(runCtx, e.cfg.Binary, args...)
	cmd.Dir = handle.Path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := Result{Branch: handle.Branch}
	costUSD, tokens, parsed := parseUsageLine(stdout.Bytes())
	if !parsed {
		costUSD, tokens = averageCostUSD[model], averageTokens[model]
	}
	result.CostUSD, result.Tokens = costUSD, tokens

	if runErr != nil || stdout.Len() == 0 {
		result.Status = types.StatusFailed
		result.ResultSummary = tail(stderr.String(), maxSummaryBytes)
		if result.ResultSummary == "" {
			result.ResultSummary = fmt.Sprintf("assistant CLI exited with error: %v", runErr)
		}
		return result, nil
	}

	result.Status = types.StatusAwaitingReview
	result.ResultSummary = e.summarize(ctx, task, stdout.String())
	return result, nil
}

func (e *Executor) buildArgs(model types.Model, prompt string) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if model != "" && model != types.ModelAuto {
		args = append(args, "--model", string(model))
	}
	args = append(args, e.cfg.ExtraFlags...)
	args = append(args, prompt)
	return args
}

func (e *Executor) summarize(ctx context.Context, task *types.Task, output string) string {
	if e.cfg.Summarizer != nil {
		summary, err := e.cfg.Summarizer.Summarize(ctx, task.Title, output, maxSummaryBytes)
		if err == nil {
			return summary
		}
	}
	return tail(output, maxSummaryBytes)
}

// tail returns at most the last n bytes of s. When the cut point splits a
// multi-byte rune, the leading continuation bytes are dropped, so the
// result starts on a rune boundary and may be shorter than n.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	for len(cut) > 0 && !utf8ValidStart(cut[0]) {
		cut = cut[1:]
	}
	return cut
}

func utf8ValidStart(b byte) bool {
	return b&0xC0 != 0x80
}

// usageLine is the shape of the JSON summary line the Assistant CLI emits
// with --output-format json/stream-json, mirroring Claude Code's own
// result-event schema (total_cost_usd, usage.{input,output}_tokens).
type usageLine struct {
	TotalCostUSD *float64 `json:"total_cost_usd"`
	Usage        *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// parseUsageLine scans output line by line for a JSON object carrying
// total_cost_usd, returning the last one found (the final result event).
func parseUsageLine(output []byte) (costUSD float64, tokens int64, ok bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var u usageLine
		if err := json.Unmarshal(line, &u); err != nil || u.TotalCostUSD == nil {
			continue
		}
		costUSD = *u.TotalCostUSD
		if u.Usage != nil {
			tokens = u.Usage.InputTokens + u.Usage.OutputTokens
		}
		ok = true
	}
	return costUSD, tokens, ok
}

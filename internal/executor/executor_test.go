package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssistant writes an executable shell script standing in for the
// Assistant CLI, returning its path.
func fakeAssistant(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake assistant script is POSIX shell only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestRunSuccessParsesCostLine(t *testing.T) {
	bin := fakeAssistant(t, `echo '{"total_cost_usd": 0.42, "usage": {"input_tokens": 100, "output_tokens": 50}}'
exit 0`)
	repo := initRepo(t)

	e, err := New(Config{Binary: bin, SandboxRoot: filepath.Join(repo, ".sandboxes")})
	require.NoError(t, err)

	task := &types.Task{ID: 1, Title: "Fix login bug", Status: types.StatusPending}
	result, err := e.Run(context.Background(), repo, task, types.ModelSonnet, "main")
	require.NoError(t, err)

	assert.Equal(t, types.StatusAwaitingReview, result.Status)
	assert.InDelta(t, 0.42, result.CostUSD, 0.001)
	assert.Equal(t, int64(150), result.Tokens)
	assert.Equal(t, "assistant/fix-login-bug-1", result.Branch)
}

func TestRunFailureCapturesStderrTail(t *testing.T) {
	bin := fakeAssistant(t, `echo "boom" 1>&2
exit 1`)
	repo := initRepo(t)

	e, err := New(Config{Binary: bin, SandboxRoot: filepath.Join(repo, ".sandboxes")})
	require.NoError(t, err)

	task := &types.Task{ID: 2, Title: "Investigate crash", Status: types.StatusPending}
	result, err := e.Run(context.Background(), repo, task, types.ModelHaiku, "main")
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Contains(t, result.ResultSummary, "boom")
}

func TestRunFallsBackToModelAverageCost(t *testing.T) {
	bin := fakeAssistant(t, `echo "did the thing"
exit 0`)
	repo := initRepo(t)

	e, err := New(Config{Binary: bin, SandboxRoot: filepath.Join(repo, ".sandboxes")})
	require.NoError(t, err)

	task := &types.Task{ID: 3, Title: "Update docs", Status: types.StatusPending}
	result, err := e.Run(context.Background(), repo, task, types.ModelHaiku, "main")
	require.NoError(t, err)

	assert.Equal(t, types.StatusAwaitingReview, result.Status)
	assert.Equal(t, averageCostUSD[types.ModelHaiku], result.CostUSD)
}

func TestNewRejectsMissingBinary(t *testing.T) {
	_, err := New(Config{Binary: "wise-magpie-definitely-not-a-real-binary"})
	require.Error(t, err)
}

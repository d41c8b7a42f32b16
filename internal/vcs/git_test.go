package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, writeFile(filepath.Join(dir, "README.md"), "hello\n"))
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestOpenAndDefaultBranch(t *testing.T) {
	dir := initTestRepo(t)
	g, err := Open(context.Background(), dir)
	require.NoError(t, err)

	branch, err := g.DefaultBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestCurrentBranch(t *testing.T) {
	dir := initTestRepo(t)
	g, err := Open(context.Background(), dir)
	require.NoError(t, err)

	branch, err := g.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestHasChangesDetectsDirtyTree(t *testing.T) {
	dir := initTestRepo(t)
	g, err := Open(context.Background(), dir)
	require.NoError(t, err)

	dirty, err := g.HasChanges(context.Background())
	require.NoError(t, err)
	require.False(t, dirty)

	require.NoError(t, writeFile(filepath.Join(dir, "scratch.txt"), "x"))

	dirty, err = g.HasChanges(context.Background())
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	dir := initTestRepo(t)
	g, err := Open(context.Background(), dir)
	require.NoError(t, err)

	worktreePath := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, g.CreateWorktree(context.Background(), worktreePath, "assistant/demo-1", "main"))

	wt, err := Open(context.Background(), worktreePath)
	require.NoError(t, err)
	require.NoError(t, writeFile(filepath.Join(worktreePath, "new.txt"), "x"))
	dirty, err := wt.HasChanges(context.Background())
	require.NoError(t, err)
	require.True(t, dirty)

	require.NoError(t, g.RemoveWorktree(context.Background(), worktreePath))
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

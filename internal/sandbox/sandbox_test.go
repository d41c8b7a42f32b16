package sandbox

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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestAcquireAndRelease(t *testing.T) {
	repo := initTestRepo(t)
	root := t.TempDir()

	handle, err := Acquire(context.Background(), repo, root, 42, "assistant/fix-the-flaky-test-42", "main")
	require.NoError(t, err)
	require.DirExists(t, handle.Path)
	require.Equal(t, "assistant/fix-the-flaky-test-42", handle.Branch)

	require.NoError(t, handle.Release(context.Background()))
	require.NoDirExists(t, handle.Path)
}

func TestAcquireRejectsDirtyTree(t *testing.T) {
	repo := initTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "dirty.txt"), []byte("x"), 0o644))

	_, err := Acquire(context.Background(), repo, t.TempDir(), 1, "assistant/whatever-1", "main")
	require.ErrorIs(t, err, ErrDirtyWorkingTree)
}

package tasks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/4beshinji/wise-magpie/internal/storage/sqlite"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func initTestRepo(t *testing.T) *vcs.Git {
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

	g, err := vcs.Open(context.Background(), dir)
	require.NoError(t, err)
	return g
}

func commitFile(t *testing.T, g *vcs.Git, name, contents string) {
	t.Helper()
	path := filepath.Join(g.RepoRoot, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = g.RepoRoot
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("add", name)
	run("commit", "-q", "-m", "update "+name)
}

func TestCodeCommentSourceFindsMarkers(t *testing.T) {
	g := initTestRepo(t)
	commitFile(t, g, "main.go", "package main\n\n// TODO: wire up logging\nfunc main() {}\n")

	src := &CodeCommentSource{Git: g}
	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, types.SourceCodeComment, found[0].Source)
	assert.Contains(t, found[0].SourceRef, "main.go:3")
	assert.Contains(t, found[0].Title, "wire up logging")
}

func TestQueueFileSourceParsesChecklist(t *testing.T) {
	g := initTestRepo(t)
	path := filepath.Join(g.RepoRoot, "wise-magpie-tasks.md")
	require.NoError(t, os.WriteFile(path, []byte("- [ ] fix the build\n- [x] done already\n- [ ] add tests\n"), 0o644))

	src := &QueueFileSource{WorkDir: g.RepoRoot}
	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "fix the build", found[0].Title)
	assert.Equal(t, types.SourceQueueFile, found[0].Source)
}

func TestMarkdownSourceSkipsQueueFile(t *testing.T) {
	g := initTestRepo(t)
	commitFile(t, g, "wise-magpie-tasks.md", "- [ ] queue item\n")
	commitFile(t, g, "NOTES.md", "- [ ] review notes\n")

	src := &MarkdownSource{Git: g}
	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, types.SourceMarkdown, found[0].Source)
	assert.Equal(t, "review notes", found[0].Title)
}

func TestAutoTemplateSourceGatesOnMinCommits(t *testing.T) {
	g := initTestRepo(t)

	src := &AutoTemplateSource{
		Store:  newTestStore(t),
		Git:    g,
		Config: AutoTaskConfig{Enabled: true},
	}
	found, err := src.Discover(context.Background())
	require.NoError(t, err)

	for _, task := range found {
		assert.NotContains(t, task.SourceRef, "clean_commits:")
	}
}

func TestAutoTemplateSourceDisabledGloballyYieldsNothing(t *testing.T) {
	g := initTestRepo(t)
	src := &AutoTemplateSource{Store: newTestStore(t), Git: g, Config: AutoTaskConfig{Enabled: false}}
	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAutoTemplateSourceRespectsIntervalSinceLastRun(t *testing.T) {
	g := initTestRepo(t)
	commitFile(t, g, "a.go", "package main\n")

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, MarkCompleted(ctx, store, "lint_check", time.Now()))

	src := &AutoTemplateSource{Store: store, Git: g, Config: AutoTaskConfig{Enabled: true}}
	found, err := src.Discover(ctx)
	require.NoError(t, err)

	for _, task := range found {
		assert.NotContains(t, task.SourceRef, "lint_check:")
	}
}

func TestAggregatorScanIsIdempotent(t *testing.T) {
	g := initTestRepo(t)
	commitFile(t, g, "main.go", "package main\n\n// FIXME: handle error\nfunc main() {}\n")
	store := newTestStore(t)

	agg := NewAggregator(store, g, AutoTaskConfig{Enabled: false})
	ctx := context.Background()

	first, err := agg.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := agg.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
}

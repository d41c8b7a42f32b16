// Package sandbox scopes a task's git worktree: acquire on dispatch,
// release on every exit path. Each task gets its own worktree and branch,
// so a run never touches the operator's checkout.
package sandbox

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/4beshinji/wise-magpie/internal/vcs"
)

// Handle is an acquired worktree, released by calling Release.
type Handle struct {
	git    *vcs.Git
	Path   string
	Branch string
}

// Acquire verifies the parent repo is clean, then creates a worktree under
// root named for taskID, checked out onto branch off baseBranch. The
// branch name is reserved by the claim, not invented here.
func Acquire(ctx context.Context, repoRoot, root string, taskID int64, branch, baseBranch string) (*Handle, error) {
	git, err := vcs.Open(ctx, repoRoot)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	dirty, err := git.HasChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox: check working tree: %w", err)
	}
	if dirty {
		return nil, ErrDirtyWorkingTree
	}

	path := filepath.Join(root, fmt.Sprintf("task-%d", taskID))

	if err := git.CreateWorktree(ctx, path, branch, baseBranch); err != nil {
		return nil, fmt.Errorf("sandbox: acquire worktree: %w", err)
	}

	return &Handle{git: git, Path: path, Branch: branch}, nil
}

// Release removes the worktree. The branch itself is left in place — the
// review workflow, not the executor, decides whether to merge or delete it.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.git.RemoveWorktree(ctx, h.Path)
}

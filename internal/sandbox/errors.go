package sandbox

import "errors"

// ErrDirtyWorkingTree is returned when a task's worktree cannot be
// acquired because the parent repository has uncommitted changes.
var ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "fix-the-thing", Slugify("Fix the Thing!!"))
	assert.Equal(t, "task", Slugify("***"))
}

func TestBranchNameFor(t *testing.T) {
	assert.Equal(t, "assistant/fix-login-bug-7", BranchNameFor("Fix login bug", 7))
}

func TestValidateBranchNameMatchesStatus(t *testing.T) {
	task := Task{
		Title:  "fix login bug",
		Source: SourceManual,
		Status: StatusRunning,
	}
	require.Error(t, task.Validate(), "running without a branch")

	task.BranchName = BranchNameFor(task.Title, 1)
	require.NoError(t, task.Validate())

	task.Status = StatusPending
	require.Error(t, task.Validate(), "pending with a branch")

	task.BranchName = ""
	require.NoError(t, task.Validate())
}

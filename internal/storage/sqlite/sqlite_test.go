package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &types.Task{
		Title:          "fix flaky test",
		Source:         types.SourceManual,
		RequestedModel: types.ModelAuto,
		Status:         types.StatusPending,
	}
	require.NoError(t, store.CreateTask(ctx, task))
	assert.NotZero(t, task.ID)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, types.StatusPending, got.Status)
}

func TestGetTaskMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetTask(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateTaskIfNotExistsDedupes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &types.Task{
		Title:     "review TODO",
		Source:    types.SourceCodeComment,
		SourceRef: "main.go:42",
		Status:    types.StatusPending,
		Priority:  20,
	}
	created, err := store.CreateTaskIfNotExists(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &types.Task{
		Title:     "review TODO (again)",
		Source:    types.SourceCodeComment,
		SourceRef: "main.go:42",
		Status:    types.StatusPending,
		Priority:  20,
	}
	created, err = store.CreateTaskIfNotExists(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	tasks, err := store.ListTasks(ctx, types.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestClaimNextPendingOrdersByPriorityThenAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := &types.Task{Title: "low", Source: types.SourceManual, Status: types.StatusPending, Priority: 10}
	high := &types.Task{Title: "high", Source: types.SourceManual, Status: types.StatusPending, Priority: 90}
	require.NoError(t, store.CreateTask(ctx, low))
	require.NoError(t, store.CreateTask(ctx, high))

	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, types.StatusRunning, claimed.Status)
	assert.Equal(t, types.BranchNameFor("high", high.ID), claimed.BranchName)

	// With one task already running, a second claim must return nil.
	again, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestFinishTaskKeepsBranchOnlyForReviewableStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &types.Task{Title: "fix the build", Source: types.SourceManual, Status: types.StatusPending, Priority: 50}
	require.NoError(t, store.CreateTask(ctx, task))
	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, claimed.BranchName)

	require.NoError(t, store.FinishTask(ctx, task.ID, types.StatusAwaitingReview, "done", 0.1, 100, types.ModelSonnet))
	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, claimed.BranchName, got.BranchName)

	require.NoError(t, store.FinishTask(ctx, task.ID, types.StatusRejected, "done", 0, 0, types.ModelSonnet))
	got, err = store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.BranchName)
}

func TestSweepOrphanRunningRecoversFromCrash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &types.Task{Title: "interrupted", Source: types.SourceManual, Status: types.StatusPending, Priority: 50}
	require.NoError(t, store.CreateTask(ctx, task))
	_, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)

	n, err := store.SweepOrphanRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.BranchName)
}

func TestQuotaWindowRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetQuotaWindow(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	window := &types.QuotaWindow{
		WindowStartedAt: time.Now().Truncate(time.Second),
		Consumed:        map[types.Model]int{types.ModelSonnet: 5, types.ModelOpus: 1},
	}
	require.NoError(t, store.SaveQuotaWindow(ctx, window))

	got, err = store.GetQuotaWindow(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.Consumed[types.ModelSonnet])
	assert.Equal(t, 1, got.Consumed[types.ModelOpus])
}

func TestEventStoreAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e1 := events.New(events.TypeTaskDispatched, 1, events.SeverityInfo, "dispatched", nil)
	e2 := events.New(events.TypeQuotaAlert, 0, events.SeverityWarning, "burn rate high", map[string]interface{}{"level": "orange"})
	require.NoError(t, store.StoreEvent(ctx, e1))
	require.NoError(t, store.StoreEvent(ctx, e2))

	all, err := store.GetEvents(ctx, events.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.GetEvents(ctx, events.Filter{TaskID: 1})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, events.TypeTaskDispatched, filtered[0].Type)
}

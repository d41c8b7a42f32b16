package budget

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/storage/sqlite"
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

func TestAdmitsTaskUnderCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, Config{DailyCapUSD: 10, WarningPercent: 0.8}, store, store)
	require.NoError(t, err)

	ok, err := a.AdmitsTask(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdmitsTaskRejectsOverCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, Config{DailyCapUSD: 10, WarningPercent: 0.8}, store, store)
	require.NoError(t, err)

	require.NoError(t, a.Record(ctx, 1, 8))
	ok, err := a.AdmitsTask(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordAccumulatesPerTaskAndDaily(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, DefaultConfig(), store, store)
	require.NoError(t, err)

	require.NoError(t, a.Record(ctx, 1, 2.5))
	require.NoError(t, a.Record(ctx, 1, 1.5))
	require.NoError(t, a.Record(ctx, 2, 3.0))

	assert.InDelta(t, 7.0, a.SpentToday(), 0.001)
}

func TestRecordEmitsWarningEventAtThreshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, Config{DailyCapUSD: 10, WarningPercent: 0.8}, store, store)
	require.NoError(t, err)

	require.NoError(t, a.Record(ctx, 1, 8.5))

	evs, err := store.GetEvents(ctx, events.Filter{Type: events.TypeBudgetAlert})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.SeverityWarning, evs[0].Severity)
}

func TestRecordEmitsExceededEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, Config{DailyCapUSD: 10, WarningPercent: 0.8}, store, store)
	require.NoError(t, err)

	require.NoError(t, a.Record(ctx, 1, 11))

	evs, err := store.GetEvents(ctx, events.Filter{Type: events.TypeBudgetAlert})
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.SeverityCritical, evs[len(evs)-1].Severity)
}

func TestStateSurvivesReload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, DefaultConfig(), store, store)
	require.NoError(t, err)
	require.NoError(t, a.Record(ctx, 1, 4.0))

	reloaded, err := New(ctx, DefaultConfig(), store, store)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, reloaded.SpentToday(), 0.001)
}

func TestRemainingNegativeOneWhenUncapped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, Config{DailyCapUSD: 0}, store, store)
	require.NoError(t, err)
	assert.Equal(t, -1.0, a.Remaining())
}

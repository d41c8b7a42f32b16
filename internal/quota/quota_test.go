package quota

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/storage/sqlite"
	"github.com/4beshinji/wise-magpie/internal/types"
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

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SnapshotInterval = 0
	return cfg
}

func TestNewInitializesWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)
	assert.True(t, a.Admits(types.ModelOpus))
	assert.Equal(t, 50*85/100, a.Remaining(types.ModelOpus))
}

func TestConsumeAndRefund(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)

	before := a.Remaining(types.ModelSonnet)
	require.NoError(t, a.Consume(ctx, types.ModelSonnet, 5))
	assert.Equal(t, before-5, a.Remaining(types.ModelSonnet))

	require.NoError(t, a.Refund(ctx, types.ModelSonnet, 5))
	assert.Equal(t, before, a.Remaining(types.ModelSonnet))
}

func TestConsumePersistsAcrossReload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)
	require.NoError(t, a.Consume(ctx, types.ModelHaiku, 10))

	reloaded, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)
	assert.Equal(t, a.Remaining(types.ModelHaiku), reloaded.Remaining(types.ModelHaiku))
}

func TestCorrectSetsRemainingExactly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)

	require.NoError(t, a.Correct(ctx, types.ModelOpus, 3))
	assert.Equal(t, 3, a.Remaining(types.ModelOpus))
}

func TestAdmitsFalseWhenExhausted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)

	require.NoError(t, a.Correct(ctx, types.ModelOpus, 0))
	assert.False(t, a.Admits(types.ModelOpus))
}

func TestRollIfDueResetsConsumptionAfterWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)

	require.NoError(t, a.Consume(ctx, types.ModelSonnet, 50))
	past := a.window.WindowStartedAt

	future := time.Now().Add(6 * time.Hour)
	require.NoError(t, a.RollIfDue(ctx, future))

	assert.Equal(t, 0, a.window.Consumed[types.ModelSonnet])
	assert.True(t, a.window.WindowStartedAt.After(past))
}

func TestRollIfDueNoopWithinWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)
	require.NoError(t, a.Consume(ctx, types.ModelSonnet, 10))

	require.NoError(t, a.RollIfDue(ctx, time.Now()))
	assert.Equal(t, 10, a.window.Consumed[types.ModelSonnet])
}

type fakeUpstream struct {
	remaining map[types.Model]int
	err       error
}

func (f fakeUpstream) RemainingMessages(ctx context.Context) (map[types.Model]int, error) {
	return f.remaining, f.err
}

func TestSyncFromUpstreamAppliesCorrections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)

	src := fakeUpstream{remaining: map[types.Model]int{types.ModelOpus: 7}}
	require.NoError(t, a.SyncFromUpstream(ctx, src))
	assert.Equal(t, 7, a.Remaining(types.ModelOpus))
}

func TestSyncFromUpstreamPropagatesError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(), store, store)
	require.NoError(t, err)

	src := fakeUpstream{err: errors.New("boom")}
	err = a.SyncFromUpstream(ctx, src)
	assert.Error(t, err)
}

func TestCaptureSnapshotAndBurnRateAlert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cfg := testConfig()
	a, err := New(ctx, cfg, store, store)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, a.Consume(ctx, types.ModelOpus, 10))
	require.NoError(t, a.CaptureSnapshotIfDue(ctx, now))

	require.NoError(t, a.Consume(ctx, types.ModelOpus, 30))
	require.NoError(t, a.CaptureSnapshotIfDue(ctx, now.Add(5*time.Minute)))

	require.NoError(t, a.Consume(ctx, types.ModelOpus, 2))
	require.NoError(t, a.CaptureSnapshotIfDue(ctx, now.Add(10*time.Minute)))

	recorded, err := store.GetEvents(ctx, events.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, recorded)
}

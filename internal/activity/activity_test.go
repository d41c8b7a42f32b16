package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

type fakeProbe struct {
	present bool
	err     error
}

func (f fakeProbe) IsPresent(ctx context.Context) (bool, error) { return f.present, f.err }

func TestMonitorIsActiveReflectsProbe(t *testing.T) {
	store := newTestStore(t)
	m := NewMonitor(store, fakeProbe{present: true})

	active, err := m.IsActive(context.Background())
	require.NoError(t, err)
	assert.True(t, active)
}

func TestMonitorRecordSamplePersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	m := NewMonitor(store, fakeProbe{present: false})

	require.NoError(t, m.RecordSample(ctx, true))
	require.NoError(t, m.RecordSample(ctx, false))

	samples, err := store.ListUsageSamples(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestTimeSinceLastActive(t *testing.T) {
	now := time.Now()
	samples := []types.UsageSample{
		{Timestamp: now.Add(-2 * time.Hour), Active: true},
		{Timestamp: now.Add(-30 * time.Minute), Active: false},
	}
	got := TimeSinceLastActive(samples, now)
	assert.InDelta(t, 2*time.Hour, got, float64(time.Second))
}

func TestTimeSinceLastActiveNoneReturnsLarge(t *testing.T) {
	now := time.Now()
	got := TimeSinceLastActive(nil, now)
	assert.Greater(t, got, 30*24*time.Hour)
}

func TestLearnPatternLaplaceSmoothsUnobservedBuckets(t *testing.T) {
	store := newTestStore(t)
	pattern, err := LearnPattern(context.Background(), store, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0.5, pattern.Probability[0][0])
}

func TestLearnPatternReflectsObservedSamples(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 8; i++ {
		require.NoError(t, store.RecordUsageSample(ctx, types.UsageSample{Timestamp: now, Active: true}))
	}
	require.NoError(t, store.RecordUsageSample(ctx, types.UsageSample{Timestamp: now, Active: false}))

	pattern, err := LearnPattern(ctx, store, now.Add(-time.Hour))
	require.NoError(t, err)

	got := pattern.Probability[int(now.Weekday())][now.Hour()]
	assert.InDelta(t, 9.0/11.0, got, 0.001)
}

func TestPredictorMinutesUntilLikelyReturn(t *testing.T) {
	pattern := &types.ActivityPattern{}
	now := time.Now()
	future := now.Add(30 * time.Minute)
	pattern.Probability[int(future.Weekday())][future.Hour()] = 0.9

	p := &Predictor{Pattern: pattern}
	minutes, ok := p.MinutesUntilLikelyReturn(now)
	require.True(t, ok)
	assert.GreaterOrEqual(t, minutes, 0)
}

func TestPredictorMinutesUntilLikelyReturnNoneFound(t *testing.T) {
	pattern := &types.ActivityPattern{} // all zero probabilities
	p := &Predictor{Pattern: pattern}
	_, ok := p.MinutesUntilLikelyReturn(time.Now())
	assert.False(t, ok)
}

func TestPredictorLongestPredictedIdleWithin(t *testing.T) {
	pattern := &types.ActivityPattern{}
	for wd := 0; wd < 7; wd++ {
		for hr := 0; hr < 24; hr++ {
			pattern.Probability[wd][hr] = 0.1
		}
	}
	p := &Predictor{Pattern: pattern}
	longest := p.LongestPredictedIdleWithin(time.Now(), 8)
	assert.GreaterOrEqual(t, longest, 8*60-bucketMinutes)
}

package model

import (
	"testing"
	"time"

	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/stretchr/testify/assert"
)

type fakeQuota struct {
	admits    map[types.Model]bool
	fractions map[types.Model]float64
	remaining time.Duration
}

func (f fakeQuota) Admits(m types.Model) bool                   { return f.admits[m] }
func (f fakeQuota) RemainingFraction(m types.Model) float64     { return f.fractions[m] }
func (f fakeQuota) WindowRemaining(now time.Time) time.Duration { return f.remaining }

type fakeIdle struct{ minutes int }

func (f fakeIdle) LongestPredictedIdleWithin(now time.Time, horizonHours int) int { return f.minutes }

func TestClassifyDifficulty(t *testing.T) {
	assert.Equal(t, types.DifficultyComplex, ClassifyDifficulty(&types.Task{Title: "Fix security vulnerability"}))
	assert.Equal(t, types.DifficultySimple, ClassifyDifficulty(&types.Task{Title: "fix typo in docs"}))
	assert.Equal(t, types.DifficultyMedium, ClassifyDifficulty(&types.Task{Title: "add a new endpoint"}))
}

func TestSelectNoUpgradeStaysAtBase(t *testing.T) {
	task := &types.Task{Title: "add a new endpoint"} // medium -> sonnet
	quota := fakeQuota{
		admits:    map[types.Model]bool{types.ModelSonnet: true},
		fractions: map[types.Model]float64{types.ModelSonnet: 0.5},
		remaining: 4 * time.Hour,
	}
	idle := fakeIdle{minutes: 0}

	got, ok := Select(task, "", quota, idle, time.Now())
	assert.True(t, ok)
	assert.Equal(t, types.ModelSonnet, got)
}

func TestSelectUpgradesWhenWindowClosingWithHeadroom(t *testing.T) {
	task := &types.Task{Title: "add a new endpoint"} // medium -> sonnet
	quota := fakeQuota{
		admits:    map[types.Model]bool{types.ModelSonnet: true, types.ModelOpus: true},
		fractions: map[types.Model]float64{types.ModelSonnet: 0.5},
		remaining: 30 * time.Minute,
	}
	idle := fakeIdle{minutes: 0}

	got, ok := Select(task, "", quota, idle, time.Now())
	assert.True(t, ok)
	assert.Equal(t, types.ModelOpus, got)
}

func TestSelectDowngradesWhenNotAdmitted(t *testing.T) {
	task := &types.Task{Title: "Fix security vulnerability"} // complex -> opus
	quota := fakeQuota{
		admits:    map[types.Model]bool{types.ModelHaiku: true},
		fractions: map[types.Model]float64{},
		remaining: 4 * time.Hour,
	}
	idle := fakeIdle{minutes: 0}

	got, ok := Select(task, "", quota, idle, time.Now())
	assert.True(t, ok)
	assert.Equal(t, types.ModelHaiku, got)
}

func TestSelectFailsWhenNoTierAdmitted(t *testing.T) {
	task := &types.Task{Title: "add a new endpoint"}
	quota := fakeQuota{admits: map[types.Model]bool{}, fractions: map[types.Model]float64{}, remaining: time.Hour}
	idle := fakeIdle{minutes: 0}

	_, ok := Select(task, "", quota, idle, time.Now())
	assert.False(t, ok)
}

func TestSelectForcedModelStillDowngrades(t *testing.T) {
	task := &types.Task{Title: "add a new endpoint"}
	quota := fakeQuota{
		admits:    map[types.Model]bool{types.ModelHaiku: true},
		fractions: map[types.Model]float64{},
		remaining: time.Hour,
	}
	idle := fakeIdle{minutes: 0}

	got, ok := Select(task, types.ModelOpus, quota, idle, time.Now())
	assert.True(t, ok)
	assert.Equal(t, types.ModelHaiku, got)
}

// Package model classifies task difficulty and selects the Assistant CLI
// model tier, upgrading or downgrading against quota headroom and the
// idle-time forecast. Pure and deterministic: the scheduler calls Select
// inline before every dispatch, so there is no I/O here.
package model

import (
	"regexp"
	"time"

	"github.com/4beshinji/wise-magpie/internal/types"
)

var (
	complexPattern = regexp.MustCompile(`(?i)security|vulnerability|architecture|migration|performance`)
	simplePattern  = regexp.MustCompile(`(?i)docs|lint|format|typo|clean|dead code|changelog`)
)

// ClassifyDifficulty inspects a task's title and description for keyword
// signals of how involved the work is likely to be.
func ClassifyDifficulty(task *types.Task) types.Difficulty {
	haystack := task.Title + " " + task.Description
	switch {
	case complexPattern.MatchString(haystack):
		return types.DifficultyComplex
	case simplePattern.MatchString(haystack):
		return types.DifficultySimple
	default:
		return types.DifficultyMedium
	}
}

// BaseModel maps a difficulty to its default model tier.
func BaseModel(difficulty types.Difficulty) types.Model {
	switch difficulty {
	case types.DifficultySimple:
		return types.ModelHaiku
	case types.DifficultyComplex:
		return types.ModelOpus
	default:
		return types.ModelSonnet
	}
}

var tierOrder = []types.Model{types.ModelHaiku, types.ModelSonnet, types.ModelOpus}

// TierIndex returns m's position in the haiku < sonnet < opus tier order, or
// -1 if m isn't one of the three tiers. Exported so callers outside this
// package (the scheduler, logging a selected tier against a task's base
// tier) can compare tiers without duplicating the ordering.
func TierIndex(m types.Model) int {
	return tierIndex(m)
}

func tierIndex(m types.Model) int {
	for i, t := range tierOrder {
		if t == m {
			return i
		}
	}
	return -1
}

func tierAt(i int) (types.Model, bool) {
	if i < 0 || i >= len(tierOrder) {
		return "", false
	}
	return tierOrder[i], true
}

// QuotaView is the slice of QuotaAccountant state the policy needs to
// reason about headroom, kept narrow so model doesn't import quota.
type QuotaView interface {
	Admits(m types.Model) bool
	RemainingFraction(m types.Model) float64
	WindowRemaining(now time.Time) time.Duration
}

// IdleView is the slice of IdlePredictor state the policy needs.
type IdleView interface {
	LongestPredictedIdleWithin(now time.Time, horizonHours int) int
}

// Select picks the model tier to run a task at: the base tier for its
// difficulty, optionally upgraded one step if either the window-closing
// rule or the long-idle rule allows it, then downgraded as many steps as necessary (up to two)
// until Admits is true. If forced is non-empty, it is used as the base
// tier instead of the difficulty mapping, but still obeys downgrade.
func Select(task *types.Task, forced types.Model, quota QuotaView, idle IdleView, now time.Time) (types.Model, bool) {
	base := forced
	if base == "" || base == types.ModelAuto {
		base = BaseModel(ClassifyDifficulty(task))
	}

	tier := base
	if forced == "" || forced == types.ModelAuto {
		if shouldUpgrade(quota, idle, tier, now) {
			if next, ok := tierAt(tierIndex(tier) + 1); ok {
				tier = next
			}
		}
	}

	for step := 0; step < 3; step++ {
		if quota.Admits(tier) {
			return tier, true
		}
		next, ok := tierAt(tierIndex(tier) - 1)
		if !ok {
			break
		}
		tier = next
	}
	return "", false
}

func shouldUpgrade(quota QuotaView, idle IdleView, tier types.Model, now time.Time) bool {
	if tierIndex(tier) >= len(tierOrder)-1 {
		return false
	}

	windowLeft := quota.WindowRemaining(now)
	if windowLeft < 90*time.Minute && quota.RemainingFraction(tier) >= 0.30 {
		return true
	}

	if idle.LongestPredictedIdleWithin(now, 8) >= 6*60 && quota.RemainingFraction(tier) >= 0.40 {
		return true
	}

	return false
}

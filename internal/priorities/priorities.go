// Package priorities scores tasks deterministically from their source,
// title, and description: a base weight per source plus additive keyword
// boosts, clamped to [0, 100].
package priorities

import (
	"regexp"

	"github.com/4beshinji/wise-magpie/internal/types"
)

type keywordBoost struct {
	pattern *regexp.Regexp
	points  int
}

var boosts = []keywordBoost{
	{regexp.MustCompile(`(?i)security|vulnerability`), 30},
	{regexp.MustCompile(`(?i)bug|fix|crash|error`), 25},
	{regexp.MustCompile(`(?i)FIXME`), 20},
	{regexp.MustCompile(`(?i)performance`), 15},
	{regexp.MustCompile(`(?i)HACK|XXX`), 15},
	{regexp.MustCompile(`(?i)refactor|cleanup`), 10},
	{regexp.MustCompile(`(?i)test`), 8},
	{regexp.MustCompile(`(?i)docs`), 5},
}

// Score computes a task's priority in [0, 100] from its source's base
// weight, keyword boosts matched against title+description, and a bonus
// for short descriptions (which tend to be quick wins).
func Score(task *types.Task) int {
	score := task.Source.BaseWeight()
	haystack := task.Title + " " + task.Description

	for _, b := range boosts {
		if b.pattern.MatchString(haystack) {
			score += b.points
		}
	}

	if n := len(task.Description); n < 200 {
		score += 15 * (200 - n) / 200
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

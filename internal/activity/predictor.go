package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/types"
)

const bucketMinutes = 15

// LearnPattern rebuilds a weekly ActivityPattern from the usage samples
// recorded since since, one probability per (weekday, hour) bucket,
// Laplace-smoothed with alpha=1 so an unobserved bucket reads 0.5 rather
// than 0.
func LearnPattern(ctx context.Context, store storage.Storage, since time.Time) (*types.ActivityPattern, error) {
	samples, err := store.ListUsageSamples(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("activity: load samples: %w", err)
	}

	var activeCount, totalCount [7][24]int
	for _, s := range samples {
		wd := int(s.Timestamp.Weekday())
		hr := s.Timestamp.Hour()
		totalCount[wd][hr]++
		if s.Active {
			activeCount[wd][hr]++
		}
	}

	pattern := &types.ActivityPattern{ComputedAt: time.Now(), SampleCount: len(samples)}
	for wd := 0; wd < 7; wd++ {
		for hr := 0; hr < 24; hr++ {
			pattern.Probability[wd][hr] = float64(activeCount[wd][hr]+1) / float64(totalCount[wd][hr]+2)
		}
	}
	return pattern, nil
}

// Predictor forecasts idle windows from a learned ActivityPattern.
type Predictor struct {
	Pattern *types.ActivityPattern
}

func (p *Predictor) probabilityAt(t time.Time) float64 {
	return p.Pattern.Probability[int(t.Weekday())][t.Hour()]
}

// MinutesUntilLikelyReturn returns the smallest delta, in minutes, such
// that the operator's predicted activity probability at now+delta is at
// least 0.5, searching forward in 15-minute steps up to 8 hours. The
// second return value is false if no such bucket is found within the
// horizon (an effectively infinite wait).
func (p *Predictor) MinutesUntilLikelyReturn(now time.Time) (int, bool) {
	const horizon = 8 * time.Hour
	for delta := time.Duration(0); delta <= horizon; delta += bucketMinutes * time.Minute {
		if p.probabilityAt(now.Add(delta)) >= 0.5 {
			return int(delta.Minutes()), true
		}
	}
	return 0, false
}

// LongestPredictedIdleWithin returns the largest run of contiguous
// 15-minute buckets with predicted activity probability below 0.3
// within the next horizonHours, in minutes.
func (p *Predictor) LongestPredictedIdleWithin(now time.Time, horizonHours int) int {
	horizon := time.Duration(horizonHours) * time.Hour
	buckets := int(horizon / (bucketMinutes * time.Minute))

	longest, current := 0, 0
	for i := 0; i <= buckets; i++ {
		t := now.Add(time.Duration(i) * bucketMinutes * time.Minute)
		if p.probabilityAt(t) < 0.3 {
			current += bucketMinutes
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// RecordUsageSample appends a single activity observation.
func (s *Store) RecordUsageSample(ctx context.Context, sample types.UsageSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_samples (timestamp, active) VALUES (?, ?)
	`, sample.Timestamp, sample.Active)
	if err != nil {
		return fmt.Errorf("sqlite: record usage sample: %w", err)
	}
	return nil
}

// ListUsageSamples returns samples recorded at or after since, oldest first.
func (s *Store) ListUsageSamples(ctx context.Context, since time.Time) ([]types.UsageSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, active FROM usage_samples WHERE timestamp >= ? ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list usage samples: %w", err)
	}
	defer rows.Close()

	var samples []types.UsageSample
	for rows.Next() {
		var sample types.UsageSample
		if err := rows.Scan(&sample.Timestamp, &sample.Active); err != nil {
			return nil, fmt.Errorf("sqlite: scan usage sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// PruneUsageSamples deletes samples older than olderThan, keeping the table
// from growing unbounded across months of daemon uptime.
func (s *Store) PruneUsageSamples(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM usage_samples WHERE timestamp < ?`, olderThan)
	if err != nil {
		return fmt.Errorf("sqlite: prune usage samples: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// GetAutoTemplateRun returns when taskType was last completed, or nil if it
// has never completed.
func (s *Store) GetAutoTemplateRun(ctx context.Context, taskType string) (*types.AutoTemplateRun, error) {
	var run types.AutoTemplateRun
	err := s.db.QueryRowContext(ctx, `
		SELECT task_type, last_completed_at FROM auto_template_runs WHERE task_type = ?
	`, taskType).Scan(&run.TaskType, &run.LastCompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get auto template run: %w", err)
	}
	return &run, nil
}

// SetAutoTemplateRun records that taskType completed at at.
func (s *Store) SetAutoTemplateRun(ctx context.Context, taskType string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_template_runs (task_type, last_completed_at) VALUES (?, ?)
		ON CONFLICT(task_type) DO UPDATE SET last_completed_at = excluded.last_completed_at
	`, taskType, at)
	if err != nil {
		return fmt.Errorf("sqlite: set auto template run: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// GetBudgetState returns the accounting row for the given day (YYYY-MM-DD,
// UTC), or nil if nothing has been spent that day yet.
func (s *Store) GetBudgetState(ctx context.Context, day string) (*types.BudgetState, error) {
	var state types.BudgetState
	var taskSpentJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT day, daily_spent_usd, task_spent_usd, last_updated
		FROM budget_state WHERE day = ?
	`, day).Scan(&state.Day, &state.DailySpentUSD, &taskSpentJSON, &state.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get budget state: %w", err)
	}

	if err := json.Unmarshal([]byte(taskSpentJSON), &state.TaskSpentUSD); err != nil {
		return nil, fmt.Errorf("sqlite: decode budget task spend: %w", err)
	}
	return &state, nil
}

// SaveBudgetState upserts the accounting row for state.Day.
func (s *Store) SaveBudgetState(ctx context.Context, state *types.BudgetState) error {
	taskSpentJSON, err := json.Marshal(state.TaskSpentUSD)
	if err != nil {
		return fmt.Errorf("sqlite: encode budget task spend: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budget_state (day, daily_spent_usd, task_spent_usd, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			daily_spent_usd = excluded.daily_spent_usd,
			task_spent_usd = excluded.task_spent_usd,
			last_updated = excluded.last_updated
	`, state.Day, state.DailySpentUSD, string(taskSpentJSON), state.LastUpdated)
	if err != nil {
		return fmt.Errorf("sqlite: save budget state: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// GetQuotaWindow returns the single open quota window row, or nil if none
// has been initialized yet.
func (s *Store) GetQuotaWindow(ctx context.Context) (*types.QuotaWindow, error) {
	var window types.QuotaWindow
	var consumedJSON string
	var lastCorrection sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT window_started_at, consumed, last_correction_at FROM quota_window WHERE id = 1
	`).Scan(&window.WindowStartedAt, &consumedJSON, &lastCorrection)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get quota window: %w", err)
	}

	if err := json.Unmarshal([]byte(consumedJSON), &window.Consumed); err != nil {
		return nil, fmt.Errorf("sqlite: decode quota window consumed: %w", err)
	}
	if lastCorrection.Valid {
		window.LastCorrectionAt = &lastCorrection.Time
	}
	return &window, nil
}

// SaveQuotaWindow upserts the single quota window row.
func (s *Store) SaveQuotaWindow(ctx context.Context, window *types.QuotaWindow) error {
	consumedJSON, err := json.Marshal(window.Consumed)
	if err != nil {
		return fmt.Errorf("sqlite: encode quota window consumed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quota_window (id, window_started_at, consumed, last_correction_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			window_started_at = excluded.window_started_at,
			consumed = excluded.consumed,
			last_correction_at = excluded.last_correction_at
	`, window.WindowStartedAt, string(consumedJSON), window.LastCorrectionAt)
	if err != nil {
		return fmt.Errorf("sqlite: save quota window: %w", err)
	}
	return nil
}

// RecordQuotaSnapshot appends a point-in-time quota reading, used by the
// burn-rate estimator.
func (s *Store) RecordQuotaSnapshot(ctx context.Context, snapshot types.QuotaSnapshot) error {
	consumedJSON, err := json.Marshal(snapshot.Consumed)
	if err != nil {
		return fmt.Errorf("sqlite: encode quota snapshot consumed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quota_snapshots (id, timestamp, window_started_at, consumed)
		VALUES (?, ?, ?, ?)
	`, snapshot.ID, snapshot.Timestamp, snapshot.WindowStartedAt, string(consumedJSON))
	if err != nil {
		return fmt.Errorf("sqlite: record quota snapshot: %w", err)
	}
	return nil
}

// ListRecentQuotaSnapshots returns up to limit snapshots, most recent first.
func (s *Store) ListRecentQuotaSnapshots(ctx context.Context, limit int) ([]types.QuotaSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, window_started_at, consumed
		FROM quota_snapshots ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list quota snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.QuotaSnapshot
	for rows.Next() {
		var snap types.QuotaSnapshot
		var consumedJSON string
		if err := rows.Scan(&snap.ID, &snap.Timestamp, &snap.WindowStartedAt, &consumedJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan quota snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(consumedJSON), &snap.Consumed); err != nil {
			return nil, fmt.Errorf("sqlite: decode quota snapshot consumed: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

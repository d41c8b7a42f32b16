package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// GetDaemonMeta returns the singleton daemon-metadata row, or nil if the
// daemon has never started.
func (s *Store) GetDaemonMeta(ctx context.Context) (*types.DaemonMeta, error) {
	var meta types.DaemonMeta
	err := s.db.QueryRowContext(ctx, `
		SELECT pid, hostname, started_at, last_tick_at FROM daemon_meta WHERE id = 1
	`).Scan(&meta.PID, &meta.Hostname, &meta.StartedAt, &meta.LastTickAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get daemon meta: %w", err)
	}
	return &meta, nil
}

// SaveDaemonMeta upserts the singleton daemon-metadata row.
func (s *Store) SaveDaemonMeta(ctx context.Context, meta *types.DaemonMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daemon_meta (id, pid, hostname, started_at, last_tick_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pid = excluded.pid,
			hostname = excluded.hostname,
			started_at = excluded.started_at,
			last_tick_at = excluded.last_tick_at
	`, meta.PID, meta.Hostname, meta.StartedAt, meta.LastTickAt)
	if err != nil {
		return fmt.Errorf("sqlite: save daemon meta: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/google/uuid"
)

// StoreEvent persists event, assigning an ID if one wasn't already set.
func (s *Store) StoreEvent(ctx context.Context, event *events.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("sqlite: event timestamp is required")
	}

	var dataJSON sql.NullString
	if event.Data != nil {
		b, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("sqlite: encode event data: %w", err)
		}
		dataJSON = sql.NullString{String: string(b), Valid: true}
	}

	var taskID sql.NullInt64
	if event.TaskID != 0 {
		taskID = sql.NullInt64{Int64: event.TaskID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, timestamp, task_id, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Type, event.Timestamp, taskID, event.Severity, event.Message, dataJSON)
	if err != nil {
		return fmt.Errorf("sqlite: store event: %w", err)
	}
	return nil
}

// GetEvents returns events matching filter, most recent first.
func (s *Store) GetEvents(ctx context.Context, filter events.Filter) ([]*events.Event, error) {
	var where []string
	var args []interface{}

	if filter.TaskID != 0 {
		where = append(where, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		where = append(where, "timestamp > ?")
		args = append(args, filter.AfterTime)
	}
	if !filter.BeforeTime.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.BeforeTime)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}
	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	query := fmt.Sprintf(`
		SELECT id, type, timestamp, task_id, severity, message, data
		FROM events %s ORDER BY timestamp DESC %s
	`, whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get events: %w", err)
	}
	defer rows.Close()

	var result []*events.Event
	for rows.Next() {
		var e events.Event
		var taskID sql.NullInt64
		var dataJSON sql.NullString

		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &taskID, &e.Severity, &e.Message, &dataJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		e.TaskID = taskID.Int64
		if dataJSON.Valid {
			if err := json.Unmarshal([]byte(dataJSON.String), &e.Data); err != nil {
				return nil, fmt.Errorf("sqlite: decode event data: %w", err)
			}
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

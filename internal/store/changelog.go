package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// logChange appends a diagnostic record of a mutation. It is best-effort:
// a failure is logged and swallowed so the mutation it describes still
// succeeds.
func (s *Store) logChange(ctx context.Context, entityType, entityKey, action string, payload any) {
	encoded := []byte("{}")
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("encode change payload", "entity", entityType, "key", entityKey, "error", err)
		} else {
			encoded = raw
		}
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO change_log(entity_type, entity_key, action, payload_json, created_at) VALUES(?, ?, ?, ?, ?)`,
		entityType, entityKey, action, string(encoded), nowUnix(),
	)
	if err != nil {
		s.logger.Warn("record change", "entity", entityType, "key", entityKey, "action", action, "error", err)
	}
}

// ChangeLog returns the newest change-log entries, most recent first. A
// non-positive limit returns them all.
func (s *Store) ChangeLog(ctx context.Context, limit int) ([]ChangeLogEntry, error) {
	query := `SELECT id, entity_type, entity_key, action, payload_json, created_at
                FROM change_log ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query change log: %w", err)
	}
	defer rows.Close()

	var entries []ChangeLogEntry
	for rows.Next() {
		var (
			entry     ChangeLogEntry
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityKey, &entry.Action, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan change log entry: %w", err)
		}
		entry.Payload = json.RawMessage(payload)
		entry.CreatedAt = unixTime(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

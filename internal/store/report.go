package store

import (
	"context"
	"fmt"
	"time"
)

// BuildMigrationReport assembles the current schema version, the newest
// migration history records, and the newest change-log entries into a
// single report for operator review. limit bounds both lists; each comes
// back newest first. A limit of zero or less means no bound.
func (s *Store) BuildMigrationReport(ctx context.Context, limit int) (*MigrationReport, error) {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.recentMigrationHistory(ctx, limit)
	if err != nil {
		return nil, err
	}

	changes, err := s.ChangeLog(ctx, limit)
	if err != nil {
		return nil, err
	}

	return &MigrationReport{
		GeneratedAt:   time.Now().UTC(),
		SchemaVersion: version,
		History:       history,
		ChangeLog:     changes,
	}, nil
}

// recentMigrationHistory returns the newest schema transitions, reversals
// included, newest first. A limit of zero or less returns everything.
func (s *Store) recentMigrationHistory(ctx context.Context, limit int) ([]MigrationRecord, error) {
	query := `SELECT id, from_schema, to_schema, backup_dir, applied_at
           FROM migration_history ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query migration history: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		record, scanErr := scanMigrationRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan migration record: %w", scanErr)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MigrationHistory returns every recorded schema transition in the order it
// was applied, reversals included.
func (s *Store) MigrationHistory(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_schema, to_schema, backup_dir, applied_at
           FROM migration_history ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query migration history: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		record, scanErr := scanMigrationRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan migration record: %w", scanErr)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// latestSchemaVersion is the version a fully migrated store reports. Bump it
// when appending a step to migrationSteps.
const latestSchemaVersion = 6

// migrationStep is one versioned, failure-atomic schema transformation.
// Steps must be idempotent: a store created from the latest base schema
// already has every table and column, so each step guards its DDL.
type migrationStep struct {
	version  int
	describe string
	apply    func(ctx context.Context, tx *sql.Tx) error
}

var migrationSteps = []migrationStep{
	{
		version:  1,
		describe: "meta and base projects table",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS meta (
                  key TEXT PRIMARY KEY,
                  value TEXT NOT NULL
                )`,
				`CREATE TABLE IF NOT EXISTS projects (
                  id INTEGER PRIMARY KEY AUTOINCREMENT,
                  name TEXT NOT NULL UNIQUE,
                  input_epub TEXT NOT NULL DEFAULT '',
                  output_translate_epub TEXT NOT NULL DEFAULT '',
                  output_edit_epub TEXT NOT NULL DEFAULT '',
                  prompt_translate TEXT NOT NULL DEFAULT '',
                  prompt_edit TEXT NOT NULL DEFAULT '',
                  glossary_path TEXT NOT NULL DEFAULT '',
                  cache_translate_path TEXT NOT NULL DEFAULT '',
                  cache_edit_path TEXT NOT NULL DEFAULT '',
                  active_step TEXT NOT NULL DEFAULT 'translate',
                  status TEXT NOT NULL DEFAULT 'idle',
                  notes TEXT NOT NULL DEFAULT '',
                  created_at INTEGER NOT NULL,
                  updated_at INTEGER NOT NULL
                )`,
			}
			return execAll(ctx, tx, stmts)
		},
	},
	{
		version:  2,
		describe: "run history",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS runs (
                  id INTEGER PRIMARY KEY AUTOINCREMENT,
                  project_id INTEGER NOT NULL,
                  step TEXT NOT NULL DEFAULT '',
                  command TEXT NOT NULL DEFAULT '',
                  status TEXT NOT NULL DEFAULT 'running',
                  started_at INTEGER NOT NULL,
                  finished_at INTEGER,
                  message TEXT NOT NULL DEFAULT ''
                )`,
				`CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id, id DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
			}
			return execAll(ctx, tx, stmts)
		},
	},
	{
		version:  3,
		describe: "qa findings",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS qa_findings (
                  id INTEGER PRIMARY KEY AUTOINCREMENT,
                  project_id INTEGER NOT NULL,
                  step TEXT NOT NULL DEFAULT '',
                  chapter_path TEXT NOT NULL DEFAULT '',
                  segment_index INTEGER NOT NULL DEFAULT 0,
                  segment_id TEXT NOT NULL DEFAULT '',
                  severity TEXT NOT NULL DEFAULT '',
                  rule_code TEXT NOT NULL DEFAULT '',
                  message TEXT NOT NULL DEFAULT '',
                  status TEXT NOT NULL DEFAULT 'open',
                  created_at INTEGER NOT NULL
                )`,
				`CREATE INDEX IF NOT EXISTS idx_qa_findings_project ON qa_findings(project_id, step)`,
				`CREATE INDEX IF NOT EXISTS idx_qa_findings_open ON qa_findings(project_id, status)`,
			}
			return execAll(ctx, tx, stmts)
		},
	},
	{
		version:  4,
		describe: "migration history and change log",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS migration_history (
                  id INTEGER PRIMARY KEY AUTOINCREMENT,
                  from_schema INTEGER NOT NULL,
                  to_schema INTEGER NOT NULL,
                  backup_dir TEXT,
                  applied_at INTEGER NOT NULL
                )`,
				`CREATE TABLE IF NOT EXISTS change_log (
                  id INTEGER PRIMARY KEY AUTOINCREMENT,
                  entity_type TEXT NOT NULL,
                  entity_key TEXT NOT NULL,
                  action TEXT NOT NULL,
                  payload_json TEXT NOT NULL DEFAULT '{}',
                  created_at INTEGER NOT NULL
                )`,
				`CREATE INDEX IF NOT EXISTS idx_change_log_created ON change_log(created_at DESC, id DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_type, entity_key, created_at DESC)`,
			}
			return execAll(ctx, tx, stmts)
		},
	},
	{
		version:  5,
		describe: "series linkage",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS series (
                  id INTEGER PRIMARY KEY AUTOINCREMENT,
                  name TEXT NOT NULL,
                  slug TEXT NOT NULL DEFAULT '',
                  source TEXT NOT NULL DEFAULT '',
                  created_at INTEGER NOT NULL,
                  updated_at INTEGER NOT NULL
                )`,
			}
			if err := execAll(ctx, tx, stmts); err != nil {
				return err
			}
			if err := addColumnIfMissing(ctx, tx, "projects", "series_id", "series_id INTEGER"); err != nil {
				return err
			}
			if err := addColumnIfMissing(ctx, tx, "projects", "volume_no", "volume_no REAL"); err != nil {
				return err
			}
			return execAll(ctx, tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_projects_series ON projects(series_id, volume_no)`,
			})
		},
	},
	{
		version:  6,
		describe: "language pair columns",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			if err := addColumnIfMissing(ctx, tx, "projects", "source_lang", "source_lang TEXT NOT NULL DEFAULT 'en'"); err != nil {
				return err
			}
			return addColumnIfMissing(ctx, tx, "projects", "target_lang", "target_lang TEXT NOT NULL DEFAULT 'pl'")
		},
	},
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, ddl string) error {
	columns, err := tableColumns(ctx, tx, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if _, ok := columns[column]; ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+ddl); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// runMigrations advances the schema from the stored version to the latest,
// one step at a time. Each step snapshots the store first, then applies its
// changes, the version bump, and the history record in one transaction. A
// failed step leaves the version untouched and its backup on disk.
func (s *Store) runMigrations(ctx context.Context) error {
	current, err := schemaVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if current >= latestSchemaVersion {
		s.logger.Debug("schema already current", "version", current)
		return nil
	}

	summary := &MigrationSummary{FromSchema: current, ToSchema: current}
	for _, step := range migrationSteps {
		if step.version <= current {
			continue
		}
		if step.version != summary.ToSchema+1 {
			return fmt.Errorf("migration steps out of order: expected version %d, found %d", summary.ToSchema+1, step.version)
		}

		backupDir, err := s.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("backup before migration to %d: %w", step.version, err)
		}

		if err := s.applyMigrationStep(ctx, step, backupDir); err != nil {
			return fmt.Errorf("apply migration to %d (%s): %w", step.version, step.describe, err)
		}

		if summary.BackupDir == "" {
			summary.BackupDir = backupDir
		}
		summary.ToSchema = step.version
		s.logger.Info("applied migration step",
			"from", step.version-1,
			"to", step.version,
			"describe", step.describe,
			"backup", backupDir,
		)
	}

	s.lastMigration = summary
	return nil
}

func (s *Store) applyMigrationStep(ctx context.Context, step migrationStep, backupDir string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := step.apply(ctx, tx); err != nil {
		return err
	}
	if err := setSchemaVersion(ctx, tx, step.version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO migration_history(from_schema, to_schema, backup_dir, applied_at) VALUES(?, ?, ?, ?)`,
		step.version-1, step.version, nullableString(backupDir), nowUnix(),
	); err != nil {
		return fmt.Errorf("record migration history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

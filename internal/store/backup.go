package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"horizon/internal/fileutil"
)

// snapshot copies the store file (and any configured auxiliary paths) into a
// fresh timestamped directory under the backup root and returns that
// directory. The WAL is checkpointed first so the copied file is complete on
// its own.
func (s *Store) snapshot(ctx context.Context) (string, error) {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("checkpoint wal: %w", err)
	}

	dir, err := nextBackupDir(s.backupRoot, time.Now().UTC())
	if err != nil {
		return "", err
	}

	if err := fileutil.CopyFileVerified(s.path, filepath.Join(dir, filepath.Base(s.path))); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("copy store file: %w", err)
	}

	names := auxiliaryCopyNames(s.backupPaths)
	for i, aux := range s.backupPaths {
		info, statErr := os.Stat(aux)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("stat backup path %s: %w", aux, statErr)
		}
		dst := filepath.Join(dir, names[i])
		if info.IsDir() {
			err = fileutil.CopyDir(aux, dst)
		} else {
			err = fileutil.CopyFileVerified(aux, dst)
		}
		if err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("copy backup path %s: %w", aux, err)
		}
	}

	s.logger.Debug("snapshot complete", "dir", dir)
	return dir, nil
}

// auxiliaryCopyNames maps each auxiliary backup path to the name it occupies
// inside a snapshot directory. Paths sharing a base name get a -2, -3 suffix
// so they cannot overwrite each other; the mapping depends only on path
// order, so snapshot and restore agree on it.
func auxiliaryCopyNames(paths []string) []string {
	names := make([]string, len(paths))
	seen := make(map[string]int, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		seen[base]++
		if n := seen[base]; n > 1 {
			base = fmt.Sprintf("%s-%d", base, n)
		}
		names[i] = base
	}
	return names
}

// nextBackupDir creates a timestamped directory under root, appending -2, -3
// etc. when two snapshots land within the same second.
func nextBackupDir(root string, now time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("ensure backup root: %w", err)
	}
	base := filepath.Join(root, "migrate-"+now.Format("20060102-150405"))
	for attempt := 1; attempt <= 100; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create backup dir: %w", err)
		}
	}
	return "", fmt.Errorf("too many backup directories for %s", base)
}

// RollbackLastMigration restores the store from the backup taken before the
// most recent forward migration and pins the schema version back to that
// step's starting point. Each call reverses exactly one migration, so
// calling it repeatedly walks the schema back one version at a time, each
// step consuming its own stored backup. The restored database records the
// reversal in its own history.
//
// The store's connection is replaced during the restore: callers must not
// hold references to it across this call. On success the backup directory
// that was restored is returned. ErrNothingToRollBack means no usable
// history record exists.
func (s *Store) RollbackLastMigration(ctx context.Context) (string, error) {
	last, err := s.latestForwardMigration(ctx)
	if err != nil {
		return "", err
	}
	if last == nil || last.BackupDir == "" {
		return "", ErrNothingToRollBack
	}
	backupFile := filepath.Join(last.BackupDir, filepath.Base(s.path))
	if _, statErr := os.Stat(backupFile); statErr != nil {
		return "", fmt.Errorf("backup %s unusable: %w", last.BackupDir, statErr)
	}

	// Checkpoint and close before touching the file so nothing is buffered
	// in the WAL when we overwrite it.
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("checkpoint wal: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return "", fmt.Errorf("close store before restore: %w", err)
	}
	s.db = nil

	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}
	if err := fileutil.CopyFileVerified(backupFile, s.path); err != nil {
		return "", fmt.Errorf("restore store file: %w", err)
	}

	names := auxiliaryCopyNames(s.backupPaths)
	for i, aux := range s.backupPaths {
		src := filepath.Join(last.BackupDir, names[i])
		info, statErr := os.Stat(src)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			return "", fmt.Errorf("stat backup copy %s: %w", src, statErr)
		}
		if info.IsDir() {
			if err := os.RemoveAll(aux); err != nil {
				return "", fmt.Errorf("clear %s before restore: %w", aux, err)
			}
			err = fileutil.CopyDir(src, aux)
		} else {
			err = fileutil.CopyFileVerified(src, aux)
		}
		if err != nil {
			return "", fmt.Errorf("restore backup path %s: %w", aux, err)
		}
	}

	db, err := openDatabase(s.path)
	if err != nil {
		return "", fmt.Errorf("reopen restored store: %w", err)
	}
	s.db = db

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin rollback tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := setSchemaVersion(ctx, tx, last.FromSchema); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO migration_history(from_schema, to_schema, backup_dir, applied_at) VALUES(?, ?, NULL, ?)`,
		last.ToSchema, last.FromSchema, nowUnix(),
	); err != nil {
		return "", fmt.Errorf("record rollback: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit rollback: %w", err)
	}

	s.logger.Info("rolled back migration",
		"from", last.ToSchema,
		"to", last.FromSchema,
		"backup", last.BackupDir,
	)
	return last.BackupDir, nil
}

// latestForwardMigration returns the newest history record that advanced the
// schema, or nil when no forward record exists. Reversal records on top of
// the history are skipped: a restored database carries the forward records
// up to its snapshot point plus the reversals appended since, and the next
// rollback target is the forward record beneath them.
func (s *Store) latestForwardMigration(ctx context.Context) (*MigrationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, from_schema, to_schema, backup_dir, applied_at
           FROM migration_history
          WHERE to_schema > from_schema
          ORDER BY id DESC LIMIT 1`)

	record, err := scanMigrationRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	return &record, nil
}

func scanMigrationRecord(scanner interface{ Scan(...any) error }) (MigrationRecord, error) {
	var (
		record    MigrationRecord
		backupDir sql.NullString
		appliedAt int64
	)
	if err := scanner.Scan(&record.ID, &record.FromSchema, &record.ToSchema, &backupDir, &appliedAt); err != nil {
		return MigrationRecord{}, err
	}
	record.BackupDir = backupDir.String
	record.AppliedAt = unixTime(appliedAt)
	return record, nil
}

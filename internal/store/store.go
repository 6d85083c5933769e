package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"horizon/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// Options selects the optional open-time procedures and backup wiring.
type Options struct {
	// RunMigrations advances the schema to the latest version, taking a
	// backup before every step.
	RunMigrations bool
	// RecoverRuntimeState closes out runs left in "running" state by a
	// crashed process and re-queues their projects.
	RecoverRuntimeState bool
	// BackupPaths lists extra directories snapshotted alongside the store
	// file during migration (e.g. the series data tree).
	BackupPaths []string
	// BackupRoot overrides the snapshot location. Defaults to a "backups"
	// directory next to the store file.
	BackupRoot string
	Logger     *slog.Logger
}

// Store manages studio persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	backupRoot  string
	backupPaths []string

	lastMigration *MigrationSummary
}

// Open initializes or connects to the studio database. It always repairs
// schema drift, then optionally runs migrations and runtime-state recovery,
// in that order.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	backupRoot := strings.TrimSpace(opts.BackupRoot)
	if backupRoot == "" {
		backupRoot = filepath.Join(filepath.Dir(path), "backups")
	}

	store := &Store{
		db:          db,
		path:        path,
		logger:      logger,
		backupRoot:  backupRoot,
		backupPaths: append([]string(nil), opts.BackupPaths...),
	}

	ctx := context.Background()
	if err := store.initialize(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return db, nil
}

func (s *Store) initialize(ctx context.Context, opts Options) error {
	if err := s.ensureBaseSchema(ctx); err != nil {
		return err
	}
	if err := s.repairSchemaDrift(ctx); err != nil {
		return err
	}
	if err := s.syncSchemaVersionKeys(ctx); err != nil {
		return err
	}
	if opts.RunMigrations {
		if err := s.runMigrations(ctx); err != nil {
			return err
		}
	}
	if opts.RecoverRuntimeState {
		if err := s.recoverRuntimeState(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ensureBaseSchema creates any missing tables at their latest shape. Tables
// that already exist are left alone; drift repair and migrations handle
// their columns.
func (s *Store) ensureBaseSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit base schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// LastMigrationSummary returns the outcome of the migration run performed at
// open time, or nil when migrations were skipped or disabled.
func (s *Store) LastMigrationSummary() *MigrationSummary {
	return s.lastMigration
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy re-runs op with short backoff while the database reports lock
// contention. Exhausting the attempts surfaces the last error unchanged.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

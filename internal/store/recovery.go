package store

import (
	"context"
	"fmt"
	"strings"
)

// recoveryMessageSuffix marks a run as closed by startup recovery rather
// than by its own process.
const recoveryMessageSuffix = "interrupted recovery on startup"

// recoverRuntimeState closes out work left behind by a crashed process:
// every run still marked running becomes an error with a stamped finish
// time, and its project returns to the pending queue so the next dispatch
// retries it. The project moves regardless of the status it was left in;
// an open run is the authority on whether work was in flight. Runs and
// projects move together in one transaction.
func (s *Store) recoverRuntimeState(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recovery tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, project_id, message FROM runs WHERE status = ?`, RunRunning)
	if err != nil {
		return fmt.Errorf("find interrupted runs: %w", err)
	}

	type staleRun struct {
		id        int64
		projectID int64
		message   string
	}
	var stale []staleRun
	for rows.Next() {
		var run staleRun
		if err := rows.Scan(&run.id, &run.projectID, &run.message); err != nil {
			rows.Close()
			return fmt.Errorf("scan interrupted run: %w", err)
		}
		stale = append(stale, run)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(stale) == 0 {
		return tx.Commit()
	}

	now := nowUnix()
	for _, run := range stale {
		message := recoveryMessageSuffix
		if trimmed := strings.TrimSpace(run.message); trimmed != "" {
			message = trimmed + "; " + recoveryMessageSuffix
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ?, message = ? WHERE id = ?`,
			RunError, now, message, run.id,
		); err != nil {
			return fmt.Errorf("close interrupted run %d: %w", run.id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
			ProjectPending, now, run.projectID,
		); err != nil {
			return fmt.Errorf("re-queue project %d: %w", run.projectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recovery: %w", err)
	}
	s.logger.Info("recovered interrupted runs", "count", len(stale))
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// StartRun records the start of a processing-step invocation against a
// project and returns the new run.
func (s *Store) StartRun(ctx context.Context, projectID int64, step, command string) (*Run, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO runs(project_id, step, command, status, started_at, message) VALUES(?, ?, ?, ?, ?, '')`,
		projectID, step, command, RunRunning, nowUnix(),
	)
	if err != nil {
		return nil, fmt.Errorf("start run for project %d: %w", projectID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("run insert id: %w", err)
	}

	s.logChange(ctx, "run", strconv.FormatInt(id, 10), "start", map[string]any{"project_id": projectID, "step": step})
	return s.GetRun(ctx, id)
}

// FinishRun closes a run with its terminal status and message, stamping the
// finish time.
func (s *Store) FinishRun(ctx context.Context, id int64, status RunStatus, message string) error {
	if status != RunDone && status != RunError {
		return fmt.Errorf("run %d: %q is not a terminal status", id, status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, message = ? WHERE id = ?`,
		status, nowUnix(), message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.logChange(ctx, "run", strconv.FormatInt(id, 10), "finish", map[string]string{"status": string(status)})
	return nil
}

// GetRun returns a run by id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, step, command, status, started_at, finished_at, message FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	return run, nil
}

// RecentRuns returns a project's runs, newest first. A non-positive limit
// returns them all.
func (s *Store) RecentRuns(ctx context.Context, projectID int64, limit int) ([]*Run, error) {
	query := `SELECT id, project_id, step, command, status, started_at, finished_at, message
                FROM runs WHERE project_id = ? ORDER BY id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	var (
		run        Run
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := scanner.Scan(&run.ID, &run.ProjectID, &run.Step, &run.Command, &run.Status, &startedAt, &finishedAt, &run.Message); err != nil {
		return nil, err
	}
	run.StartedAt = unixTime(startedAt)
	if finishedAt.Valid {
		finished := unixTime(finishedAt.Int64)
		run.FinishedAt = &finished
	}
	return &run, nil
}

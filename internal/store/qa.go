package store

import (
	"context"
	"fmt"
	"strconv"
)

// ReplaceQAFindings swaps a project step's findings for a fresh set in one
// transaction, so re-running a QA pass never leaves stale rows behind. It
// returns the number of findings stored.
func (s *Store) ReplaceQAFindings(ctx context.Context, projectID int64, step string, findings []QAFinding) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin qa replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM qa_findings WHERE project_id = ? AND step = ?`, projectID, step,
	); err != nil {
		return 0, fmt.Errorf("clear qa findings for project %d step %q: %w", projectID, step, err)
	}

	now := nowUnix()
	for _, finding := range findings {
		status := finding.Status
		if status == "" {
			status = FindingOpen
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO qa_findings(
               project_id, step, chapter_path, segment_index, segment_id,
               severity, rule_code, message, status, created_at
             ) VALUES(`+makePlaceholders(10)+`)`,
			projectID, step, finding.ChapterPath, finding.SegmentIndex, finding.SegmentID,
			finding.Severity, finding.RuleCode, finding.Message, status, now,
		); err != nil {
			return 0, fmt.Errorf("insert qa finding for project %d: %w", projectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit qa replace: %w", err)
	}

	s.logChange(ctx, "project", strconv.FormatInt(projectID, 10), "qa_replace", map[string]any{
		"step":  step,
		"count": len(findings),
	})
	return len(findings), nil
}

// CountOpenQAFindings returns how many findings are still open for a
// project step. An empty step counts across all steps.
func (s *Store) CountOpenQAFindings(ctx context.Context, projectID int64, step string) (int, error) {
	query := `SELECT COUNT(1) FROM qa_findings WHERE project_id = ? AND status = ?`
	args := []any{projectID, FindingOpen}
	if step != "" {
		query += ` AND step = ?`
		args = append(args, step)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count open qa findings for project %d: %w", projectID, err)
	}
	return count, nil
}

// ListQAFindings returns a project step's findings in segment order. An
// empty step lists all steps.
func (s *Store) ListQAFindings(ctx context.Context, projectID int64, step string) ([]*QAFinding, error) {
	query := `SELECT id, project_id, step, chapter_path, segment_index, segment_id,
                     severity, rule_code, message, status, created_at
                FROM qa_findings WHERE project_id = ?`
	args := []any{projectID}
	if step != "" {
		query += ` AND step = ?`
		args = append(args, step)
	}
	query += ` ORDER BY chapter_path, segment_index, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query qa findings for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var findings []*QAFinding
	for rows.Next() {
		var (
			finding   QAFinding
			createdAt int64
		)
		if err := rows.Scan(
			&finding.ID, &finding.ProjectID, &finding.Step, &finding.ChapterPath,
			&finding.SegmentIndex, &finding.SegmentID, &finding.Severity,
			&finding.RuleCode, &finding.Message, &finding.Status, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan qa finding: %w", err)
		}
		finding.CreatedAt = unixTime(createdAt)
		findings = append(findings, &finding)
	}
	return findings, rows.Err()
}

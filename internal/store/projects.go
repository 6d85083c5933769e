package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const projectColumns = `p.id, p.name, p.series_id, s.name, p.volume_no,
  p.input_epub, p.output_translate_epub, p.output_edit_epub,
  p.prompt_translate, p.prompt_edit, p.glossary_path,
  p.cache_translate_path, p.cache_edit_path,
  p.source_lang, p.target_lang, p.active_step, p.status, p.notes,
  p.created_at, p.updated_at`

const projectFrom = ` FROM projects p LEFT JOIN series s ON s.id = p.series_id`

// CreateProject inserts a new project in the idle state. Names are unique;
// a duplicate returns ErrProjectNameExists.
func (s *Store) CreateProject(ctx context.Context, name string, fields ProjectFields) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name must not be empty")
	}
	activeStep := strings.TrimSpace(fields.ActiveStep)
	if activeStep == "" {
		activeStep = "translate"
	}
	sourceLang := strings.TrimSpace(fields.SourceLang)
	if sourceLang == "" {
		sourceLang = "en"
	}
	targetLang := strings.TrimSpace(fields.TargetLang)
	if targetLang == "" {
		targetLang = "pl"
	}

	now := nowUnix()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO projects(
           name, series_id, volume_no,
           input_epub, output_translate_epub, output_edit_epub,
           prompt_translate, prompt_edit, glossary_path,
           cache_translate_path, cache_edit_path,
           source_lang, target_lang, active_step, status, notes,
           created_at, updated_at
         ) VALUES(`+makePlaceholders(18)+`)`,
		name, nullableInt64(fields.SeriesID), nullableFloat64(fields.VolumeNo),
		fields.InputEPUB, fields.OutputTranslateEPUB, fields.OutputEditEPUB,
		fields.PromptTranslate, fields.PromptEdit, fields.GlossaryPath,
		fields.CacheTranslatePath, fields.CacheEditPath,
		sourceLang, targetLang, activeStep, ProjectIdle, fields.Notes,
		now, now,
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNameExists, name)
		}
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("project insert id: %w", err)
	}

	s.logChange(ctx, "project", strconv.FormatInt(id, 10), "create", map[string]string{"name": name})
	return s.GetProject(ctx, id)
}

// GetProject returns a project by id with its series name joined in, or
// ErrNotFound.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+projectFrom+` WHERE p.id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return project, nil
}

// GetProjectByName resolves a project by its unique name, or ErrNotFound.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+projectFrom+` WHERE p.name = ?`, strings.TrimSpace(name))
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", name, err)
	}
	return project, nil
}

// MarkProjectPending puts a project on the work queue with the step the
// next run should execute. Status and step change in one statement so a
// crash between them cannot leave a pending project pointed at a stale
// step. Queue order follows updated_at, so re-marking an already pending
// project moves it to the back.
func (s *Store) MarkProjectPending(ctx context.Context, id int64, step string) error {
	step = strings.TrimSpace(step)
	if step == "" {
		return errors.New("step must not be empty")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE projects SET status = ?, active_step = ?, updated_at = ? WHERE id = ?`,
		ProjectPending, step, nowUnix(), id,
	)
	if err != nil {
		return fmt.Errorf("mark project %d pending: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.logChange(ctx, "project", strconv.FormatInt(id, 10), "pending",
		map[string]string{"status": string(ProjectPending), "active_step": step})
	return nil
}

// SetProjectStatus moves a project to the given lifecycle state and bumps
// its updated_at stamp.
func (s *Store) SetProjectStatus(ctx context.Context, id int64, status ProjectStatus) error {
	if _, ok := projectStatusSet[status]; !ok {
		return fmt.Errorf("unknown project status %q", status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		status, nowUnix(), id,
	)
	if err != nil {
		return fmt.Errorf("set project %d status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.logChange(ctx, "project", strconv.FormatInt(id, 10), "status", map[string]string{"status": string(status)})
	return nil
}

// GetNextPendingProject returns the pending project that has waited the
// longest, or nil when the queue is empty. It does not claim the project;
// the dispatcher marks it running before launching work.
func (s *Store) GetNextPendingProject(ctx context.Context) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+projectFrom+` WHERE p.status = ? ORDER BY p.updated_at ASC, p.id ASC LIMIT 1`,
		ProjectPending,
	)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending project: %w", err)
	}
	return project, nil
}

// AssignProjectToSeries links a project to a series with an optional volume
// number. A nil seriesID detaches the project and clears its volume.
func (s *Store) AssignProjectToSeries(ctx context.Context, id int64, seriesID *int64, volumeNo *float64) error {
	if seriesID != nil {
		if _, err := s.GetSeries(ctx, *seriesID); err != nil {
			return err
		}
	} else {
		volumeNo = nil
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE projects SET series_id = ?, volume_no = ?, updated_at = ? WHERE id = ?`,
		nullableInt64(seriesID), nullableFloat64(volumeNo), nowUnix(), id,
	)
	if err != nil {
		return fmt.Errorf("assign project %d to series: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.logChange(ctx, "project", strconv.FormatInt(id, 10), "assign_series", map[string]any{
		"series_id": seriesID,
		"volume_no": volumeNo,
	})
	return nil
}

// UpdateProjectFields replaces the editable columns of a project. Zero
// values overwrite; callers read the project first when they mean to patch.
func (s *Store) UpdateProjectFields(ctx context.Context, id int64, fields ProjectFields) (*Project, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE projects SET
           series_id = ?, volume_no = ?,
           input_epub = ?, output_translate_epub = ?, output_edit_epub = ?,
           prompt_translate = ?, prompt_edit = ?, glossary_path = ?,
           cache_translate_path = ?, cache_edit_path = ?,
           source_lang = ?, target_lang = ?, active_step = ?, notes = ?,
           updated_at = ?
         WHERE id = ?`,
		nullableInt64(fields.SeriesID), nullableFloat64(fields.VolumeNo),
		fields.InputEPUB, fields.OutputTranslateEPUB, fields.OutputEditEPUB,
		fields.PromptTranslate, fields.PromptEdit, fields.GlossaryPath,
		fields.CacheTranslatePath, fields.CacheEditPath,
		fields.SourceLang, fields.TargetLang, fields.ActiveStep, fields.Notes,
		nowUnix(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update project %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	s.logChange(ctx, "project", strconv.FormatInt(id, 10), "update", nil)
	return s.GetProject(ctx, id)
}

// SetProjectNotes replaces a project's free-form notes.
func (s *Store) SetProjectNotes(ctx context.Context, id int64, notes string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE projects SET notes = ?, updated_at = ? WHERE id = ?`,
		notes, nowUnix(), id,
	)
	if err != nil {
		return fmt.Errorf("set project %d notes: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProjects returns every project ordered by name. Tombstoned rows are
// skipped unless includeDeleted is set.
func (s *Store) ListProjects(ctx context.Context, includeDeleted bool) ([]*Project, error) {
	query := `SELECT ` + projectColumns + projectFrom
	args := []any{}
	if !includeDeleted {
		query += ` WHERE p.status != ?`
		args = append(args, ProjectDeleted)
	}
	query += ` ORDER BY p.name COLLATE NOCASE, p.id`
	return s.queryProjects(ctx, query, args...)
}

// ListProjectsForSeries returns the series' projects in volume order.
// Projects without a volume number sort last, by id.
func (s *Store) ListProjectsForSeries(ctx context.Context, seriesID int64, includeDeleted bool) ([]*Project, error) {
	query := `SELECT ` + projectColumns + projectFrom + ` WHERE p.series_id = ?`
	args := []any{seriesID}
	if !includeDeleted {
		query += ` AND p.status != ?`
		args = append(args, ProjectDeleted)
	}
	query += ` ORDER BY p.volume_no IS NULL, p.volume_no, p.id`
	return s.queryProjects(ctx, query, args...)
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan project: %w", scanErr)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// ListProjectsWithStageSummary returns every live project decorated with its
// newest run and open QA-finding count, for status displays.
func (s *Store) ListProjectsWithStageSummary(ctx context.Context) ([]*ProjectStageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+`,
           COALESCE(r.step, ''), COALESCE(r.status, ''),
           (SELECT COUNT(1) FROM qa_findings q WHERE q.project_id = p.id AND q.status = ?)
         `+projectFrom+`
         LEFT JOIN runs r ON r.id = (
           SELECT id FROM runs WHERE project_id = p.id ORDER BY id DESC LIMIT 1
         )
         WHERE p.status != ?
         ORDER BY p.name COLLATE NOCASE, p.id`,
		FindingOpen, ProjectDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("query project summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*ProjectStageSummary
	for rows.Next() {
		var (
			summary   ProjectStageSummary
			seriesID  sql.NullInt64
			series    sql.NullString
			volumeNo  sql.NullFloat64
			createdAt int64
			updatedAt int64
			runStatus string
		)
		if err := rows.Scan(
			&summary.ID, &summary.Name, &seriesID, &series, &volumeNo,
			&summary.InputEPUB, &summary.OutputTranslateEPUB, &summary.OutputEditEPUB,
			&summary.PromptTranslate, &summary.PromptEdit, &summary.GlossaryPath,
			&summary.CacheTranslatePath, &summary.CacheEditPath,
			&summary.SourceLang, &summary.TargetLang, &summary.ActiveStep, &summary.Status, &summary.Notes,
			&createdAt, &updatedAt,
			&summary.LastRunStep, &runStatus, &summary.OpenFindings,
		); err != nil {
			return nil, fmt.Errorf("scan project summary: %w", err)
		}
		if seriesID.Valid {
			summary.SeriesID = &seriesID.Int64
		}
		summary.SeriesName = series.String
		if volumeNo.Valid {
			summary.VolumeNo = &volumeNo.Float64
		}
		summary.CreatedAt = unixTime(createdAt)
		summary.UpdatedAt = unixTime(updatedAt)
		summary.LastRunStatus = RunStatus(runStatus)
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}

func scanProject(scanner interface{ Scan(...any) error }) (*Project, error) {
	var (
		project   Project
		seriesID  sql.NullInt64
		series    sql.NullString
		volumeNo  sql.NullFloat64
		createdAt int64
		updatedAt int64
	)
	if err := scanner.Scan(
		&project.ID, &project.Name, &seriesID, &series, &volumeNo,
		&project.InputEPUB, &project.OutputTranslateEPUB, &project.OutputEditEPUB,
		&project.PromptTranslate, &project.PromptEdit, &project.GlossaryPath,
		&project.CacheTranslatePath, &project.CacheEditPath,
		&project.SourceLang, &project.TargetLang, &project.ActiveStep, &project.Status, &project.Notes,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if seriesID.Valid {
		project.SeriesID = &seriesID.Int64
	}
	project.SeriesName = series.String
	if volumeNo.Valid {
		project.VolumeNo = &volumeNo.Float64
	}
	project.CreatedAt = unixTime(createdAt)
	project.UpdatedAt = unixTime(updatedAt)
	return &project, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"horizon/internal/textutil"
)

// EnsureSeries returns the series with the given name, creating it when
// absent. Name matching is exact after whitespace trimming; the slug is
// derived from the name on creation.
func (s *Store) EnsureSeries(ctx context.Context, name, source string) (*Series, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("series name must not be empty")
	}

	existing, err := s.findSeriesByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := nowUnix()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO series(name, slug, source, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		name, textutil.Slugify(name), strings.TrimSpace(source), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create series %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("series insert id: %w", err)
	}

	s.logChange(ctx, "series", strconv.FormatInt(id, 10), "create", map[string]string{"name": name})
	return s.GetSeries(ctx, id)
}

// GetSeries returns a series by id, or ErrNotFound.
func (s *Store) GetSeries(ctx context.Context, id int64) (*Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, source, created_at, updated_at FROM series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get series %d: %w", id, err)
	}
	return series, nil
}

func (s *Store) findSeriesByName(ctx context.Context, name string) (*Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, source, created_at, updated_at FROM series WHERE name = ? ORDER BY id LIMIT 1`, name)
	series, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find series %q: %w", name, err)
	}
	return series, nil
}

// ListSeries returns every series ordered by name.
func (s *Store) ListSeries(ctx context.Context) ([]*Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, source, created_at, updated_at FROM series ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var all []*Series
	for rows.Next() {
		series, scanErr := scanSeries(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan series: %w", scanErr)
		}
		all = append(all, series)
	}
	return all, rows.Err()
}

// UpdateSeries renames a series, optionally regenerating its slug from the
// new name. An untouched slug keeps existing on-disk layouts stable.
func (s *Store) UpdateSeries(ctx context.Context, id int64, name string, regenerateSlug bool) (*Series, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("series name must not be empty")
	}

	var (
		res sql.Result
		err error
	)
	if regenerateSlug {
		res, err = s.execWithRetry(ctx,
			`UPDATE series SET name = ?, slug = ?, updated_at = ? WHERE id = ?`,
			name, textutil.Slugify(name), nowUnix(), id,
		)
	} else {
		res, err = s.execWithRetry(ctx,
			`UPDATE series SET name = ?, updated_at = ? WHERE id = ?`,
			name, nowUnix(), id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update series %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	s.logChange(ctx, "series", strconv.FormatInt(id, 10), "update", map[string]any{"name": name, "regenerate_slug": regenerateSlug})
	return s.GetSeries(ctx, id)
}

// DeleteSeries removes a series and detaches its projects, clearing their
// series linkage but keeping the projects themselves. It returns the number
// of projects detached.
func (s *Store) DeleteSeries(ctx context.Context, id int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin series delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET series_id = NULL, volume_no = NULL, updated_at = ? WHERE series_id = ?`,
		nowUnix(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("detach projects of series %d: %w", id, err)
	}
	detached, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete series %d: %w", id, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit series delete: %w", err)
	}

	s.logChange(ctx, "series", strconv.FormatInt(id, 10), "delete", map[string]int64{"detached_projects": detached})
	return int(detached), nil
}

// CountProjectsForSeries returns how many projects currently belong to the
// series, tombstoned rows excluded.
func (s *Store) CountProjectsForSeries(ctx context.Context, id int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM projects WHERE series_id = ? AND status != ?`, id, ProjectDeleted,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count projects for series %d: %w", id, err)
	}
	return count, nil
}

func scanSeries(scanner interface{ Scan(...any) error }) (*Series, error) {
	var (
		series    Series
		createdAt int64
		updatedAt int64
	)
	if err := scanner.Scan(&series.ID, &series.Name, &series.Slug, &series.Source, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	series.CreatedAt = unixTime(createdAt)
	series.UpdatedAt = unixTime(updatedAt)
	return &series, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gridline/gridline/internal/model"
)

// staleCutoff discards weekends whose start is too far in the past to
// still be "the next weekend". Keeps an unfinished ingestion row from
// pinning the persistent message to a long-gone event.
const staleCutoff = 4 * 24 * time.Hour

// InsertWeekend stores a new weekend and returns its id.
// Used by the ingestion tooling and by tests; the reconciler itself
// never creates weekends.
func (s *Store) InsertWeekend(ctx context.Context, w model.Weekend) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO weekends (series, name, icon, year, start, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.Series.String(), w.Name, w.Icon, w.Year, w.Start.Unix(), string(w.Status))
	if err != nil {
		return 0, fmt.Errorf("insert weekend: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert weekend id: %w", err)
	}
	return id, nil
}

// OpenWeekends returns all weekends of a series still marked Open,
// ordered by start time (ties by id).
func (s *Store) OpenWeekends(ctx context.Context, series model.Series) ([]model.Weekend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, series, name, icon, year, start, status
		FROM weekends
		WHERE series = ? AND status = ?
		ORDER BY start ASC, id ASC
	`, series.String(), string(model.WeekendOpen))
	if err != nil {
		return nil, fmt.Errorf("query open weekends: %w", err)
	}
	defer rows.Close()

	var weekends []model.Weekend
	for rows.Next() {
		w, err := scanWeekend(rows)
		if err != nil {
			return nil, err
		}
		weekends = append(weekends, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekends: %w", err)
	}
	if weekends == nil {
		weekends = []model.Weekend{}
	}
	return weekends, nil
}

// NextOpenWeekend returns the earliest-starting open weekend of a
// series that is not stale (started more than four days ago).
// Returns the not-found class when no such weekend exists.
func (s *Store) NextOpenWeekend(ctx context.Context, series model.Series, now time.Time) (model.Weekend, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, series, name, icon, year, start, status
		FROM weekends
		WHERE series = ? AND status = ? AND start > ?
		ORDER BY start ASC, id ASC
		LIMIT 1
	`, series.String(), string(model.WeekendOpen), now.Add(-staleCutoff).Unix())

	w, err := scanWeekend(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Weekend{}, fmt.Errorf("next open weekend for %s: %w", series, model.ErrNotFound)
	}
	if err != nil {
		return model.Weekend{}, err
	}
	return w, nil
}

// SetWeekendStatus updates a weekend's status.
// Returns the not-found class when the row does not exist.
func (s *Store) SetWeekendStatus(ctx context.Context, id int64, status model.WeekendStatus) error {
	notFound := fmt.Errorf("weekend %d: %w", id, model.ErrNotFound)
	err := s.execAffectingOne(ctx, notFound, `
		UPDATE weekends SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("set weekend %d status: %w", id, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWeekend(r rowScanner) (model.Weekend, error) {
	var (
		w              model.Weekend
		series, status string
		start          int64
	)
	if err := r.Scan(&w.ID, &series, &w.Name, &w.Icon, &w.Year, &start, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Weekend{}, err
		}
		return model.Weekend{}, fmt.Errorf("scan weekend: %w", err)
	}
	w.Series = model.ParseSeries(series)
	w.Status = model.ParseWeekendStatus(status)
	w.Start = time.Unix(start, 0).UTC()
	return w, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gridline/gridline/internal/model"
)

// InsertSession stores a new session and returns its id.
// Used by the ingestion tooling and by tests.
func (s *Store) InsertSession(ctx context.Context, sess model.Session) (int64, error) {
	var number sql.NullInt64
	if sess.Number > 0 {
		number = sql.NullInt64{Int64: int64(sess.Number), Valid: true}
	}
	var title sql.NullString
	if sess.Title != "" {
		title = sql.NullString{String: sess.Title, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (weekend_id, kind, status, notify, start, duration, number, title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.WeekendID, string(sess.Kind), string(sess.Status), string(sess.Notify),
		sess.Start.Unix(), int64(sess.Duration.Seconds()), number, title)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert session id: %w", err)
	}
	return id, nil
}

// Sessions returns all sessions of a weekend ordered by start time
// (ties by id).
func (s *Store) Sessions(ctx context.Context, weekendID int64) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, weekend_id, kind, status, notify, start, duration, number, title
		FROM sessions
		WHERE weekend_id = ?
		ORDER BY start ASC, id ASC
	`, weekendID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	return sessions, nil
}

// SetSessionStatus updates a session's status.
// Returns the not-found class when the row does not exist.
func (s *Store) SetSessionStatus(ctx context.Context, id int64, status model.SessionStatus) error {
	notFound := fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	err := s.execAffectingOne(ctx, notFound, `
		UPDATE sessions SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("set session %d status: %w", id, err)
	}
	return err
}

func scanSession(rows *sql.Rows) (model.Session, error) {
	var (
		sess                 model.Session
		kind, status, notify string
		start, duration      int64
		number               sql.NullInt64
		title                sql.NullString
	)
	err := rows.Scan(&sess.ID, &sess.WeekendID, &kind, &status, &notify,
		&start, &duration, &number, &title)
	if err != nil {
		return model.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Kind = model.ParseSessionKind(kind)
	sess.Status = model.ParseSessionStatus(status)
	sess.Notify = model.ParseNotifyPreference(notify)
	sess.Start = time.Unix(start, 0).UTC()
	sess.Duration = time.Duration(duration) * time.Second
	if number.Valid {
		sess.Number = int(number.Int64)
	}
	if title.Valid {
		sess.Title = title.String
	}
	return sess, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gridline/gridline/internal/model"
)

// InsertTrackedMessage records a newly posted artifact and returns its id.
func (s *Store) InsertTrackedMessage(ctx context.Context, m model.TrackedMessage) (int64, error) {
	var expires sql.NullInt64
	if !m.ExpiresAt.IsZero() {
		expires = sql.NullInt64{Int64: m.ExpiresAt.Unix(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (kind, series, channel, message, posted, expires, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(m.Kind), m.Series.String(), m.ChannelID, m.MessageID,
		m.Posted.Unix(), expires, m.Hash)
	if err != nil {
		return 0, fmt.Errorf("insert tracked message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert tracked message id: %w", err)
	}
	return id, nil
}

// TrackedMessages returns the tracked artifacts of one kind for a
// series, ordered by post time (ties by id). Post order is what the
// calendar reconciliation zips against, so the ordering here is part
// of the contract.
func (s *Store) TrackedMessages(ctx context.Context, kind model.MessageKind, series model.Series) ([]model.TrackedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, series, channel, message, posted, expires, hash
		FROM messages
		WHERE kind = ? AND series = ?
		ORDER BY posted ASC, id ASC
	`, string(kind), series.String())
	if err != nil {
		return nil, fmt.Errorf("query tracked messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ExpiredMessages returns every tracked artifact whose expiry has
// passed, across all kinds and series.
func (s *Store) ExpiredMessages(ctx context.Context, now time.Time) ([]model.TrackedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, series, channel, message, posted, expires, hash
		FROM messages
		WHERE expires IS NOT NULL AND expires <= ?
		ORDER BY expires ASC, id ASC
	`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query expired messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// UpdateMessageHash records the hash of the content last synced to an
// artifact.
func (s *Store) UpdateMessageHash(ctx context.Context, id int64, hash string) error {
	notFound := fmt.Errorf("tracked message %d: %w", id, model.ErrNotFound)
	err := s.execAffectingOne(ctx, notFound, `
		UPDATE messages SET hash = ? WHERE id = ?
	`, hash, id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("update message %d hash: %w", id, err)
	}
	return err
}

// SetMessageExpiry stamps an artifact with an explicit expiry.
func (s *Store) SetMessageExpiry(ctx context.Context, id int64, at time.Time) error {
	notFound := fmt.Errorf("tracked message %d: %w", id, model.ErrNotFound)
	err := s.execAffectingOne(ctx, notFound, `
		UPDATE messages SET expires = ? WHERE id = ?
	`, at.Unix(), id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("set message %d expiry: %w", id, err)
	}
	return err
}

// DeleteTrackedMessage forgets an artifact record. Deleting a row that
// is already gone is not an error - the sweep may race a concurrent
// cleanup.
func (s *Store) DeleteTrackedMessage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete tracked message %d: %w", id, err)
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]model.TrackedMessage, error) {
	var msgs []model.TrackedMessage
	for rows.Next() {
		var (
			m       model.TrackedMessage
			kind    string
			series  string
			posted  int64
			expires sql.NullInt64
		)
		err := rows.Scan(&m.ID, &kind, &series, &m.ChannelID, &m.MessageID,
			&posted, &expires, &m.Hash)
		if err != nil {
			return nil, fmt.Errorf("scan tracked message: %w", err)
		}
		parsedKind, err := model.ParseMessageKind(kind)
		if err != nil {
			return nil, fmt.Errorf("scan tracked message: %w", err)
		}
		m.Kind = parsedKind
		m.Series = model.ParseSeries(series)
		m.Posted = time.Unix(posted, 0).UTC()
		if expires.Valid {
			m.ExpiresAt = time.Unix(expires.Int64, 0).UTC()
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.TrackedMessage{}
	}
	return msgs, nil
}

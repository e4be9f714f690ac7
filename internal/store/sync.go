package store

import (
	"context"
	"time"

	"taskcal/internal/models"
)

// SaveGoogleToken stores the serialized OAuth token of userID.
func (s *Store) SaveGoogleToken(ctx context.Context, userID string, token []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO google_tokens(user_id, token, updated_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		userID, string(token), formatTime(time.Now()),
	)
	return err
}

// GoogleToken returns the serialized OAuth token of userID.
func (s *Store) GoogleToken(ctx context.Context, userID string) ([]byte, error) {
	var tok string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM google_tokens WHERE user_id = ?`, userID).Scan(&tok)
	if err != nil {
		return nil, notFound(err)
	}
	return []byte(tok), nil
}

// GoogleUsers lists the users that have linked a Google account.
func (s *Store) GoogleUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM google_tokens ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutSyncLink records (or replaces) the remote copy of an event.
func (s *Store) PutSyncLink(ctx context.Context, l *models.SyncLink) error {
	l.SyncedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_links(event_id, user_id, google_calendar_id, google_event_id, synced_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(event_id) DO UPDATE SET google_calendar_id = excluded.google_calendar_id,
		   google_event_id = excluded.google_event_id, synced_at = excluded.synced_at`,
		l.EventID, l.UserID, l.GoogleCalendarID, l.GoogleEventID, formatTime(l.SyncedAt),
	)
	return err
}

// GetSyncLink returns the link of eventID.
func (s *Store) GetSyncLink(ctx context.Context, eventID string) (*models.SyncLink, error) {
	return scanSyncLink(s.db.QueryRowContext(ctx,
		`SELECT event_id, user_id, google_calendar_id, google_event_id, synced_at FROM sync_links WHERE event_id = ?`, eventID))
}

// ListSyncLinks returns every link of userID.
func (s *Store) ListSyncLinks(ctx context.Context, userID string) ([]*models.SyncLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, google_calendar_id, google_event_id, synced_at FROM sync_links WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SyncLink
	for rows.Next() {
		l, err := scanSyncLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteSyncLink forgets the remote copy of eventID.
func (s *Store) DeleteSyncLink(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_links WHERE event_id = ?`, eventID)
	return err
}

func scanSyncLink(row interface{ Scan(...any) error }) (*models.SyncLink, error) {
	var l models.SyncLink
	var synced string
	if err := row.Scan(&l.EventID, &l.UserID, &l.GoogleCalendarID, &l.GoogleEventID, &synced); err != nil {
		return nil, notFound(err)
	}
	l.SyncedAt = parseTime(synced)
	return &l, nil
}

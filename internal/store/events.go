package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskcal/internal/models"
)

const eventColumns = `id, calendar_id, user_id, title, description, location, start_at, end_at, attendees, request, estimate, uid, created_at, updated_at`

// EventFilter narrows ListEvents. Zero fields do not filter.
type EventFilter struct {
	CalendarID string
	From       time.Time // events ending after From
	To         time.Time // events starting before To
}

// CreateEvent inserts e, assigning ID, UID (if unset) and timestamps.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	now := time.Now().UTC()
	e.ID = newID()
	if e.UID == "" {
		e.UID = newID()
	}
	e.CreatedAt, e.UpdatedAt = now, now

	attendees, err := json.Marshal(nonNil(e.Attendees))
	if err != nil {
		return fmt.Errorf("failed to marshal attendees: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events(`+eventColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.CalendarID, e.UserID, e.Title, e.Description, e.Location,
		e.StartTime.UnixMilli(), e.EndTime.UnixMilli(), string(attendees),
		e.Request, e.Estimate, e.UID, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent returns an event owned by userID.
func (s *Store) GetEvent(ctx context.Context, userID, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ? AND user_id = ?`, id, userID)
	return scanEvent(row)
}

// ListEvents returns the events of userID matching f, ordered by start time.
func (s *Store) ListEvents(ctx context.Context, userID string, f EventFilter) ([]*models.Event, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.CalendarID != "" {
		where = append(where, "calendar_id = ?")
		args = append(args, f.CalendarID)
	}
	if !f.From.IsZero() {
		where = append(where, "end_at > ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, f.To.UnixMilli())
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+strings.Join(where, " AND ")+` ORDER BY start_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEvent writes the mutable fields of e.
func (s *Store) UpdateEvent(ctx context.Context, e *models.Event) error {
	e.UpdatedAt = time.Now().UTC()
	attendees, err := json.Marshal(nonNil(e.Attendees))
	if err != nil {
		return fmt.Errorf("failed to marshal attendees: %w", err)
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE events SET calendar_id = ?, title = ?, description = ?, location = ?, start_at = ?, end_at = ?,
		 attendees = ?, request = ?, estimate = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		e.CalendarID, e.Title, e.Description, e.Location, e.StartTime.UnixMilli(), e.EndTime.UnixMilli(),
		string(attendees), e.Request, e.Estimate, formatTime(e.UpdatedAt), e.ID, e.UserID,
	))
}

// DeleteEvent removes an event owned by userID.
func (s *Store) DeleteEvent(ctx context.Context, userID, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ? AND user_id = ?`, id, userID))
}

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	var e models.Event
	var start, end int64
	var attendees, created, updated string
	err := row.Scan(&e.ID, &e.CalendarID, &e.UserID, &e.Title, &e.Description, &e.Location,
		&start, &end, &attendees, &e.Request, &e.Estimate, &e.UID, &created, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	e.StartTime = time.UnixMilli(start).UTC()
	e.EndTime = time.UnixMilli(end).UTC()
	e.CreatedAt, e.UpdatedAt = parseTime(created), parseTime(updated)
	if err := json.Unmarshal([]byte(attendees), &e.Attendees); err != nil {
		return nil, fmt.Errorf("event %s: bad attendees: %w", e.ID, err)
	}
	if len(e.Attendees) == 0 {
		e.Attendees = nil
	}
	return &e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

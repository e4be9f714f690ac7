package store

import (
	"context"
	"fmt"
	"time"

	"taskcal/internal/models"
)

const calendarColumns = `id, user_id, name, description, color, time_zone, google_id, created_at, updated_at`

// CreateCalendar inserts c, assigning ID and timestamps.
func (s *Store) CreateCalendar(ctx context.Context, c *models.Calendar) error {
	now := time.Now().UTC()
	c.ID = newID()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendars(`+calendarColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.Name, c.Description, c.Color, c.TimeZone, c.GoogleID,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert calendar: %w", err)
	}
	return nil
}

// GetCalendar returns a calendar owned by userID.
func (s *Store) GetCalendar(ctx context.Context, userID, id string) (*models.Calendar, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+calendarColumns+` FROM calendars WHERE id = ? AND user_id = ?`, id, userID)
	return scanCalendar(row)
}

// ListCalendars returns all calendars of userID ordered by name.
func (s *Store) ListCalendars(ctx context.Context, userID string) ([]*models.Calendar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+calendarColumns+` FROM calendars WHERE user_id = ? ORDER BY name, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Calendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCalendar writes the mutable fields of c.
func (s *Store) UpdateCalendar(ctx context.Context, c *models.Calendar) error {
	c.UpdatedAt = time.Now().UTC()
	return affected(s.db.ExecContext(ctx,
		`UPDATE calendars SET name = ?, description = ?, color = ?, time_zone = ?, google_id = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		c.Name, c.Description, c.Color, c.TimeZone, c.GoogleID, formatTime(c.UpdatedAt), c.ID, c.UserID,
	))
}

// DeleteCalendar removes a calendar and, through the foreign key, its events.
func (s *Store) DeleteCalendar(ctx context.Context, userID, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM calendars WHERE id = ? AND user_id = ?`, id, userID))
}

func scanCalendar(row interface{ Scan(...any) error }) (*models.Calendar, error) {
	var c models.Calendar
	var created, updated string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Color, &c.TimeZone, &c.GoogleID, &created, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	c.CreatedAt, c.UpdatedAt = parseTime(created), parseTime(updated)
	return &c, nil
}

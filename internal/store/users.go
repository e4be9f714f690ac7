package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskcal/internal/models"

	"github.com/google/uuid"
)

// CreateUser inserts u, assigning ID and CreatedAt.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.ID = newID()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, name, password_hash, created_at) VALUES(?,?,?,?,?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, formatTime(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	return err
}

// GetUser returns the user with the given ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id))
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var created string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &created); err != nil {
		return nil, notFound(err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// CreateSession starts a session for userID lasting ttl.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*models.Session, error) {
	sess := &models.Session{
		Token:     strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", ""),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(token, user_id, expires_at) VALUES(?,?,?)`,
		sess.Token, sess.UserID, sess.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession returns an unexpired session. Expired sessions are removed.
func (s *Store) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.UserID, &expires)
	if err != nil {
		return nil, notFound(err)
	}
	sess.ExpiresAt = time.UnixMilli(expires).UTC()
	if sess.Expired(time.Now()) {
		_ = s.DeleteSession(ctx, token)
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteSession ends a session.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// PruneSessions deletes expired sessions and reports how many were removed.
func (s *Store) PruneSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"taskcal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: "Test", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := createUser(t, s, "Ada@Example.com")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)

	got, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	err = s.CreateUser(ctx, &models.User{Email: "ada@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "a@example.com")

	sess, err := s.CreateSession(ctx, u.ID, time.Hour)
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)

	got, err := s.GetSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	require.NoError(t, s.DeleteSession(ctx, sess.Token))
	_, err = s.GetSession(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	expired, err := s.CreateSession(ctx, u.ID, -time.Minute)
	require.NoError(t, err)
	_, err = s.GetSession(ctx, expired.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCalendarsAndEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice@example.com")
	bob := createUser(t, s, "bob@example.com")

	cal := &models.Calendar{UserID: alice.ID, Name: "Work"}
	require.NoError(t, s.CreateCalendar(ctx, cal))
	assert.Equal(t, "UTC", cal.TimeZone)

	_, err := s.GetCalendar(ctx, bob.ID, cal.ID)
	assert.ErrorIs(t, err, ErrNotFound, "calendars are scoped to their owner")

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	first := &models.Event{CalendarID: cal.ID, UserID: alice.ID, Title: "Install", StartTime: base, EndTime: base.Add(90 * time.Minute), Attendees: []string{"c@example.com"}}
	second := &models.Event{CalendarID: cal.ID, UserID: alice.ID, Title: "Repair", StartTime: base.Add(24 * time.Hour), EndTime: base.Add(25 * time.Hour)}
	require.NoError(t, s.CreateEvent(ctx, second))
	require.NoError(t, s.CreateEvent(ctx, first))
	assert.NotEmpty(t, first.UID)

	all, err := s.ListEvents(ctx, alice.ID, EventFilter{CalendarID: cal.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Install", all[0].Title)
	assert.Equal(t, []string{"c@example.com"}, all[0].Attendees)
	assert.Equal(t, 90*time.Minute, all[0].Duration())

	window, err := s.ListEvents(ctx, alice.ID, EventFilter{From: base.Add(2 * time.Hour), To: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "Repair", window[0].Title)

	none, err := s.ListEvents(ctx, bob.ID, EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	first.Title = "Install v2"
	require.NoError(t, s.UpdateEvent(ctx, first))
	got, err := s.GetEvent(ctx, alice.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Install v2", got.Title)

	first.UserID = bob.ID
	assert.ErrorIs(t, s.UpdateEvent(ctx, first), ErrNotFound)

	require.NoError(t, s.DeleteCalendar(ctx, alice.ID, cal.ID))
	_, err = s.GetEvent(ctx, alice.ID, second.ID)
	assert.ErrorIs(t, err, ErrNotFound, "events are removed with their calendar")
}

func TestDocumentsAndEstimates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	docs := []*models.Document{
		{Source: "pricing.md", Content: "Boiler service takes two hours.", Embedding: []float32{1, 0}},
		{Source: "pricing.md", Content: "Tap washer swap is 20 minutes.", Embedding: []float32{0, 1}},
	}
	require.NoError(t, s.InsertDocuments(ctx, docs))

	got, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 0}, got[0].Embedding)

	n, err := s.DeleteDocumentsBySource(ctx, "pricing.md")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	est := &models.Estimate{UserID: "u1", Request: "fix tap", Duration: "0.20", Minutes: 20, Raw: "0.20", Attempts: 1, Sources: []string{"pricing.md"}}
	require.NoError(t, s.InsertEstimate(ctx, est))
	list, err := s.ListEstimates(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"pricing.md"}, list[0].Sources)
}

func TestSyncLinksAndTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveGoogleToken(ctx, "u1", []byte(`{"access_token":"a"}`)))
	require.NoError(t, s.SaveGoogleToken(ctx, "u1", []byte(`{"access_token":"b"}`)))
	tok, err := s.GoogleToken(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"b"}`, string(tok))

	users, err := s.GoogleUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)

	require.NoError(t, s.PutSyncLink(ctx, &models.SyncLink{EventID: "e1", UserID: "u1", GoogleCalendarID: "primary", GoogleEventID: "g1"}))
	l, err := s.GetSyncLink(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "g1", l.GoogleEventID)

	links, err := s.ListSyncLinks(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, links, 1)

	require.NoError(t, s.DeleteSyncLink(ctx, "e1"))
	_, err = s.GetSyncLink(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound)
}

package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskcal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testEvent() *models.Event {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	return &models.Event{
		ID:        "local-1",
		Title:     "Boiler service",
		StartTime: start,
		EndTime:   start.Add(90 * time.Minute),
		Attendees: []string{"customer@example.com"},
		Estimate:  "1.30",
	}
}

func newTestCalendar(t *testing.T, handler http.HandlerFunc) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewCalendarClient(context.Background(), discard, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return c
}

func TestInsertEvent(t *testing.T) {
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)

		var ev calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "Boiler service", ev.Summary)
		assert.Equal(t, "local-1", ev.ExtendedProperties.Private[EventIDProperty])
		assert.Equal(t, "2026-05-04T10:30:00Z", ev.End.DateTime)
		require.Len(t, ev.Attendees, 1)

		ev.Id = "google-1"
		json.NewEncoder(w).Encode(ev)
	})

	id, err := c.InsertEvent(context.Background(), DefaultCalendar, testEvent())
	require.NoError(t, err)
	assert.Equal(t, "google-1", id)
}

func TestUpdateAndDeleteMissingEvent(t *testing.T) {
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		io.WriteString(w, `{"error":{"code":410,"message":"Resource has been deleted"}}`)
	})

	err := c.UpdateEvent(context.Background(), DefaultCalendar, "google-1", testEvent())
	assert.ErrorIs(t, err, ErrRemoteGone)

	assert.NoError(t, c.DeleteEvent(context.Background(), DefaultCalendar, "google-1"))
}

func TestDeleteEventFailure(t *testing.T) {
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"message":"forbidden"}}`)
	})

	err := c.DeleteEvent(context.Background(), DefaultCalendar, "google-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRemoteGone)
}

func TestToInternalEvents(t *testing.T) {
	items := []*calendar.Event{
		{
			Id:      "g1",
			Summary: "Synced",
			Start:   &calendar.EventDateTime{DateTime: "2026-05-04T09:00:00Z"},
			End:     &calendar.EventDateTime{DateTime: "2026-05-04T10:00:00Z"},
			ExtendedProperties: &calendar.EventExtendedProperties{
				Private: map[string]string{EventIDProperty: "local-9"},
			},
		},
		{Id: "g2", Summary: "All day", Start: &calendar.EventDateTime{Date: "2026-05-04"}, End: &calendar.EventDateTime{Date: "2026-05-05"}},
		{Id: "g3", Summary: "Foreign", Start: &calendar.EventDateTime{DateTime: "2026-05-04T11:00:00Z"}, End: &calendar.EventDateTime{DateTime: "2026-05-04T11:30:00Z"}},
	}

	got := toInternalEvents(items)
	require.Len(t, got, 2)
	assert.Equal(t, "local-9", got[0].ID)
	assert.Equal(t, time.Hour, got[0].Duration())
	assert.Equal(t, "g3", got[1].ID)
}

func TestEventNotice(t *testing.T) {
	msg := EventNotice([]string{"a@example.com", "b@example.com"}, testEvent(), time.UTC)
	assert.Contains(t, msg, "To: <a@example.com>, <b@example.com>\r\n")
	assert.Contains(t, msg, "Subject: Scheduled: Boiler service\r\n")
	assert.Contains(t, msg, "Estimated duration: 1.30")
	assert.Contains(t, msg, "Start: Mon 4 May 2026 09:00 UTC")

	msg = EventNotice([]string{"a@example.com\r\nBcc: b@example.com"}, testEvent(), time.UTC)
	assert.NotContains(t, msg, "\r\nBcc:")
}

type memTokens struct {
	saved map[string][]byte
}

func (m *memTokens) SaveGoogleToken(ctx context.Context, userID string, token []byte) error {
	m.saved[userID] = token
	return nil
}

func (m *memTokens) GoogleToken(ctx context.Context, userID string) ([]byte, error) {
	b, ok := m.saved[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

type sequenceSource struct {
	tokens []*oauth2.Token
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	t := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return t, nil
}

func TestPersistingTokenSourceSavesRefreshedTokens(t *testing.T) {
	store := &memTokens{saved: map[string][]byte{}}
	ts := &persistingTokenSource{
		base: &sequenceSource{tokens: []*oauth2.Token{
			{AccessToken: "old"},
			{AccessToken: "new", RefreshToken: "r"},
		}},
		store:  store,
		userID: "u1",
		last:   "old",
		logger: discard,
	}

	_, err := ts.Token()
	require.NoError(t, err)
	assert.Empty(t, store.saved, "unchanged token is not rewritten")

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.Contains(t, string(store.saved["u1"]), `"access_token":"new"`)
}

func TestHTTPClientRequiresToken(t *testing.T) {
	store := &memTokens{saved: map[string][]byte{}}
	cfg, err := OAuthConfig("id", "secret", OutOfBandRedirect)
	require.NoError(t, err)

	_, err = HTTPClient(context.Background(), discard, cfg, store, "nobody")
	assert.ErrorContains(t, err, "could not load google token")
}

func TestNotifierSendsThroughLinkedAccount(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		var msg struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		b, err := base64.URLEncoding.DecodeString(msg.Raw)
		require.NoError(t, err)
		raw = string(b)
		w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	tokens := &memTokens{saved: map[string][]byte{"u1": []byte(`{"access_token":"access","token_type":"Bearer"}`)}}
	cfg, err := OAuthConfig("id", "secret", OutOfBandRedirect)
	require.NoError(t, err)

	n := NewNotifier(discard, cfg, tokens, time.UTC, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, n.NotifyAttendees(context.Background(), "u1", testEvent()))
	assert.Contains(t, raw, "To: <customer@example.com>\r\n")
	assert.Contains(t, raw, "Estimated duration: 1.30")
}

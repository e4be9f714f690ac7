package caldav

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskcal/internal/models"

	"github.com/emersion/go-webdav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndRemove(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			b, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			stored[r.URL.Path] = string(b)
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			delete(stored, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	client, err := webdav.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)
	p := &Publisher{
		webdavClient: client,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		calendarPath: "/calendars/me/jobs/",
	}

	start := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)
	e := &models.Event{UID: "uid-1", Title: "Boiler service", StartTime: start, EndTime: start.Add(90 * time.Minute)}

	require.NoError(t, p.Publish(t.Context(), e))
	body, ok := stored["/calendars/me/jobs/uid-1.ics"]
	require.True(t, ok, "event stored under its UID")
	assert.Contains(t, body, "BEGIN:VEVENT")
	assert.Contains(t, body, "SUMMARY:Boiler service")

	require.NoError(t, p.Remove(t.Context(), e))
	assert.Empty(t, stored)
}

package caldav

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskcal/internal/models"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	start := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)
	events := []*models.Event{
		{UID: "uid-1", Title: "Boiler service", StartTime: start, EndTime: start.Add(90 * time.Minute), Estimate: "1.30", Attendees: []string{"c@example.com"}},
		{UID: "uid-2", Title: "Tap washer", Location: "12 High St", StartTime: start.Add(3 * time.Hour), EndTime: start.Add(3*time.Hour + 20*time.Minute)},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, "Jobs", events))
	assert.Contains(t, buf.String(), "X-WR-CALNAME:Jobs")
	assert.Contains(t, buf.String(), "X-TASKCAL-ESTIMATE:1.30")

	cal, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	decoded := cal.Events()
	require.Len(t, decoded, 2)

	summary, err := decoded[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Boiler service", summary)

	end, err := decoded[0].DateTimeEnd(time.UTC)
	require.NoError(t, err)
	assert.True(t, end.Equal(start.Add(90*time.Minute)))

	loc, err := decoded[1].Props.Text(ical.PropLocation)
	require.NoError(t, err)
	assert.Equal(t, "12 High St", loc)
}

func TestBasicAuthTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "taskcal/1.0", r.UserAgent())
	}))
	defer srv.Close()

	client := &http.Client{Transport: &basicAuthTransport{Username: "me", Password: "secret", Transport: http.DefaultTransport}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

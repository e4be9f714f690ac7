package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"taskcal/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// basicAuthTransport handles adding Basic Auth and custom headers to requests.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "taskcal/1.0")
	return t.Transport.RoundTrip(req)
}

// Publisher writes events into one calendar of a CalDAV server.
type Publisher struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
}

// NewPublisher connects to endpoint and locates the calendar called calendarName.
func NewPublisher(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string) (*Publisher, error) {
	if calendarName == "" {
		return nil, fmt.Errorf("CALDAV_CALENDAR_NAME environment variable not set")
	}
	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	p := &Publisher{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	p.calendarPath, err = p.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	logger.Info("Successfully found CalDAV calendar", "path", p.calendarPath)
	return p, nil
}

// Publish creates or replaces event in the calendar, keyed by its UID.
func (p *Publisher) Publish(ctx context.Context, event *models.Event) error {
	p.logger.Debug("Publishing event to CalDAV", "eventTitle", event.Title, "uid", event.UID)

	cal := newCalendar()
	cal.Children = append(cal.Children, toICal(event))

	writer, err := p.webdavClient.Create(ctx, p.eventPath(event))
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload event: %w", err)
	}

	p.logger.Info("Successfully published event", "eventTitle", event.Title)
	return nil
}

// Remove deletes the published copy of event.
func (p *Publisher) Remove(ctx context.Context, event *models.Event) error {
	if err := p.webdavClient.RemoveAll(ctx, p.eventPath(event)); err != nil {
		return fmt.Errorf("failed to remove event from CalDAV server: %w", err)
	}
	return nil
}

// eventPath is the absolute server path of the event resource.
func (p *Publisher) eventPath(event *models.Event) string {
	return path.Join(p.calendarPath, event.UID+".ics")
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (p *Publisher) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := p.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := p.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := p.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

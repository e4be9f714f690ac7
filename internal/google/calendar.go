package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskcal/internal/models"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// EventIDProperty is the private extended property holding the local event ID.
	EventIDProperty = "taskcal-event-id"
	// DefaultCalendar is used when a calendar has no Google ID configured.
	DefaultCalendar = "primary"
)

// ErrRemoteGone is returned when the remote event no longer exists.
var ErrRemoteGone = errors.New("remote event no longer exists")

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewCalendarClient creates a client on top of an authenticated HTTP client.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, httpClient *http.Client, opts ...option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger}, nil
}

// ListEvents fetches events between from and to, expanding recurrences.
func (c *CalendarClient) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Event, error) {
	c.logger.Debug("Fetching events", "calendarID", calendarID, "from", from, "to", to)

	var items []*calendar.Event
	err := c.service.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(items), "calendarID", calendarID)
	return toInternalEvents(items), nil
}

// InsertEvent creates e in calendarID and returns the Google event ID.
func (c *CalendarClient) InsertEvent(ctx context.Context, calendarID string, e *models.Event) (string, error) {
	created, err := c.service.Events.Insert(calendarID, toGoogleEvent(e)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return created.Id, nil
}

// UpdateEvent replaces the Google event googleID with e.
func (c *CalendarClient) UpdateEvent(ctx context.Context, calendarID, googleID string, e *models.Event) error {
	_, err := c.service.Events.Update(calendarID, googleID, toGoogleEvent(e)).Context(ctx).Do()
	if isGone(err) {
		return ErrRemoteGone
	}
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes the Google event googleID. Missing events are not an error.
func (c *CalendarClient) DeleteEvent(ctx context.Context, calendarID, googleID string) error {
	err := c.service.Events.Delete(calendarID, googleID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// DiscoverCalendars finds all calendars associated with the authenticated account.
func (c *CalendarClient) DiscoverCalendars(ctx context.Context) ([]string, error) {
	list, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

// toGoogleEvent converts an internal event to the Calendar API representation.
func toGoogleEvent(e *models.Event) *calendar.Event {
	ev := &calendar.Event{
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       &calendar.EventDateTime{DateTime: e.StartTime.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: e.EndTime.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{EventIDProperty: e.ID},
		},
	}
	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}
	return ev
}

// toInternalEvents converts Google Calendar events to the internal Event model.
func toInternalEvents(googleEvents []*calendar.Event) []*models.Event {
	var internalEvents []*models.Event
	for _, item := range googleEvents {
		// Skip events without a start time (e.g., all-day events without a specific time)
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}

		startTime, _ := time.Parse(time.RFC3339, item.Start.DateTime)
		endTime, _ := time.Parse(time.RFC3339, item.End.DateTime)

		var attendees []string
		for _, a := range item.Attendees {
			attendees = append(attendees, a.Email)
		}

		event := &models.Event{
			ID:          item.Id,
			Title:       item.Summary,
			Description: item.Description,
			StartTime:   startTime,
			EndTime:     endTime,
			Location:    item.Location,
			Attendees:   attendees,
			UID:         item.ICalUID,
		}
		if item.ExtendedProperties != nil {
			if local := item.ExtendedProperties.Private[EventIDProperty]; local != "" {
				event.ID = local
			}
		}
		internalEvents = append(internalEvents, event)
	}
	return internalEvents
}

// Package caldav exports events as iCalendar data and publishes them to a
// CalDAV server.
package caldav

import (
	"fmt"
	"io"
	"time"

	"taskcal/internal/models"

	"github.com/emersion/go-ical"
)

const productID = "-//taskcal//EN"

// Encode writes events as a single VCALENDAR named name.
func Encode(w io.Writer, name string, events []*models.Event) error {
	cal := newCalendar()
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}
	for _, e := range events {
		cal.Children = append(cal.Children, toICal(e))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar to iCal format: %w", err)
	}
	return nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// toICal converts an internal Event model to an ical.Component (VEvent).
func toICal(event *models.Event) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.UID)
	ve.Props.SetText(ical.PropSummary, event.Title)
	stamp := event.UpdatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime.UTC())

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.Estimate != "" {
		ve.Props.SetText("X-TASKCAL-ESTIMATE", event.Estimate)
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", attendee))
		ve.Props.Add(p)
	}
	return ve
}

package models

import "time"

// Event represents a calendar event owned by a user.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendarId"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartTime   time.Time `json:"start"`
	EndTime     time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
	Request     string    `json:"request,omitempty"`  // Free-text customer request the duration was estimated from
	Estimate    string    `json:"estimate,omitempty"` // H.MM scheduling decimal, empty when the end time was given explicitly
	UID         string    `json:"uid"`                // The iCalendar UID, used for export and CalDAV publishing
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Duration returns the length of the event.
func (e *Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// Calendar groups events for a user.
type Calendar struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	TimeZone    string    `json:"timeZone"`
	GoogleID    string    `json:"googleId,omitempty"` // Google calendar events are pushed to, "primary" when empty
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is an account of the application.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session binds a cookie token to a user.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Estimate is the outcome of estimating a task duration from a customer request.
type Estimate struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Request   string    `json:"request"`
	Duration  string    `json:"duration"` // H.MM scheduling decimal
	Minutes   int       `json:"minutes"`
	Raw       string    `json:"raw"`      // Last model answer
	Attempts  int       `json:"attempts"` // Model calls it took
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document is a chunk of reference text with its embedding.
type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// SyncLink maps a local event to its copy in Google Calendar.
type SyncLink struct {
	EventID          string
	UserID           string
	GoogleCalendarID string
	GoogleEventID    string
	SyncedAt         time.Time
}

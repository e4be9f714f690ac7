package api

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"taskcal/internal/models"
	"taskcal/internal/store"
	"taskcal/internal/syncer"
)

const titleFromRequestLen = 60

// eventInput is the body of event create and update requests. Nil fields
// are left unchanged on update.
type eventInput struct {
	CalendarID  *string    `json:"calendarId"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	Attendees   *[]string  `json:"attendees"`
	Request     *string    `json:"request"`
	Notify      bool       `json:"notify"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, u *models.User) {
	f := store.EventFilter{CalendarID: r.PathValue("id")}
	if f.CalendarID != "" {
		if _, err := s.store.GetCalendar(r.Context(), u.ID, f.CalendarID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.store.ListEvents(r.Context(), u.ID, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request, u *models.User) {
	cal, err := s.store.GetCalendar(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in eventInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Start == nil {
		s.writeError(w, r, badRequest("start is required"))
		return
	}

	e := &models.Event{CalendarID: cal.ID, UserID: u.ID}
	if err := in.applyFields(e); err != nil {
		s.writeError(w, r, err)
		return
	}
	e.StartTime = *in.Start
	if in.End != nil {
		e.EndTime = *in.End
	} else {
		if e.Request == "" {
			s.writeError(w, r, badRequest("either end or request is required"))
			return
		}
		if err := s.estimateEnd(r.Context(), u, e); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if e.Title == "" {
		e.Title = titleFromRequest(e.Request)
	}
	if err := validateEvent(e); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.CreateEvent(r.Context(), e); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("Created event", "event", e.ID, "calendar", cal.ID, "estimate", e.Estimate)

	s.afterSave(r.Context(), u, e, in.Notify)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request, u *models.User) {
	e, err := s.store.GetEvent(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request, u *models.User) {
	e, err := s.store.GetEvent(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in eventInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	if in.CalendarID != nil && *in.CalendarID != e.CalendarID {
		if _, err := s.store.GetCalendar(r.Context(), u.ID, *in.CalendarID); err != nil {
			s.writeError(w, r, err)
			return
		}
		e.CalendarID = *in.CalendarID
	}

	oldRequest, length := e.Request, e.Duration()
	if err := in.applyFields(e); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Start != nil {
		e.StartTime = *in.Start
	}
	switch {
	case in.End != nil:
		e.EndTime = *in.End
		e.Estimate = ""
	case e.Request != oldRequest && e.Request != "":
		if err := s.estimateEnd(r.Context(), u, e); err != nil {
			s.writeError(w, r, err)
			return
		}
	default:
		e.EndTime = e.StartTime.Add(length)
	}
	if err := validateEvent(e); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.UpdateEvent(r.Context(), e); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.afterSave(r.Context(), u, e, in.Notify)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request, u *models.User) {
	id := r.PathValue("id")
	if err := s.store.DeleteEvent(r.Context(), u.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.unsync(r, u, id)
	w.WriteHeader(http.StatusNoContent)
}

func (in eventInput) applyFields(e *models.Event) error {
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Location != nil {
		e.Location = *in.Location
	}
	if in.Attendees != nil {
		attendees, err := parseAttendees(*in.Attendees)
		if err != nil {
			return err
		}
		e.Attendees = attendees
	}
	if in.Request != nil {
		e.Request = strings.TrimSpace(*in.Request)
	}
	return nil
}

// parseAttendees reduces each entry to its bare email address.
func parseAttendees(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, a := range list {
		addr, err := mail.ParseAddress(strings.TrimSpace(a))
		if err != nil {
			return nil, badRequest("invalid attendee %q", a)
		}
		out = append(out, addr.Address)
	}
	return out, nil
}

// estimateEnd sets the end of e from an estimate of its request and
// records the estimate in the user's history.
func (s *Server) estimateEnd(ctx context.Context, u *models.User, e *models.Event) error {
	est, err := s.estimate(ctx, u, e.Request)
	if err != nil {
		return err
	}
	e.Estimate = est.Duration
	e.EndTime = e.StartTime.Add(time.Duration(est.Minutes) * time.Minute)
	return nil
}

func validateEvent(e *models.Event) error {
	if e.Title == "" {
		return badRequest("title is required")
	}
	if e.StartTime.IsZero() {
		return badRequest("start is required")
	}
	if !e.EndTime.After(e.StartTime) {
		return badRequest("end must be after start")
	}
	return nil
}

func titleFromRequest(request string) string {
	line, _, _ := strings.Cut(request, "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > titleFromRequestLen {
		return strings.TrimSpace(string(r[:titleFromRequestLen])) + "..."
	}
	return line
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequest("invalid %s %q, want RFC 3339", key, v)
	}
	return t, nil
}

// afterSave pushes e to Google Calendar when the user has linked an account
// and emails attendees when asked to. Failures are logged, the periodic sync
// retries pushes.
func (s *Server) afterSave(ctx context.Context, u *models.User, e *models.Event, notify bool) {
	if s.opts.Syncer != nil && s.linked(ctx, u.ID) {
		if err := s.opts.Syncer.SyncEvent(ctx, u.ID, e); err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				s.logger.Info("Event is being synced, leaving it to the running sync", "event", e.ID)
			} else {
				s.logger.Warn("Failed to push event to Google Calendar", "event", e.ID, "error", err)
			}
		}
	}
	if notify && s.opts.Notifier != nil && len(e.Attendees) > 0 {
		if err := s.opts.Notifier.NotifyAttendees(ctx, u.ID, e); err != nil {
			s.logger.Warn("Failed to notify attendees", "event", e.ID, "error", err)
		}
	}
}

func (s *Server) unsync(r *http.Request, u *models.User, eventID string) {
	if s.opts.Syncer == nil || !s.linked(r.Context(), u.ID) {
		return
	}
	if err := s.opts.Syncer.Unsync(r.Context(), u.ID, eventID); err != nil {
		s.logger.Warn("Failed to remove event from Google Calendar", "event", eventID, "error", err)
	}
}

func (s *Server) linked(ctx context.Context, userID string) bool {
	_, err := s.store.GoogleToken(ctx, userID)
	return err == nil
}

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"taskcal/internal/caldav"
	"taskcal/internal/models"
	"taskcal/internal/store"
)

type calendarInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	TimeZone    *string `json:"timeZone"`
	GoogleID    *string `json:"googleId"`
}

func (in calendarInput) apply(c *models.Calendar) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.Color != nil {
		c.Color = *in.Color
	}
	if in.TimeZone != nil {
		if _, err := time.LoadLocation(*in.TimeZone); err != nil {
			return badRequest("invalid time zone %q", *in.TimeZone)
		}
		c.TimeZone = *in.TimeZone
	}
	if in.GoogleID != nil {
		c.GoogleID = strings.TrimSpace(*in.GoogleID)
	}
	if c.Name == "" {
		return badRequest("name is required")
	}
	return nil
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request, u *models.User) {
	cals, err := s.store.ListCalendars(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cals == nil {
		cals = []*models.Calendar{}
	}
	writeJSON(w, http.StatusOK, cals)
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request, u *models.User) {
	var in calendarInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c := &models.Calendar{UserID: u.ID}
	if err := in.apply(c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.CreateCalendar(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request, u *models.User) {
	c, err := s.store.GetCalendar(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request, u *models.User) {
	c, err := s.store.GetCalendar(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in calendarInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.apply(c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateCalendar(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCalendar(w http.ResponseWriter, r *http.Request, u *models.User) {
	id := r.PathValue("id")
	events, err := s.store.ListEvents(r.Context(), u.ID, store.EventFilter{CalendarID: id})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteCalendar(r.Context(), u.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, e := range events {
		s.unsync(r, u, e.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportCalendar(w http.ResponseWriter, r *http.Request, u *models.User) {
	c, err := s.store.GetCalendar(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.store.ListEvents(r.Context(), u.ID, store.EventFilter{CalendarID: c.ID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Name+".ics"))
	if err := caldav.Encode(w, c.Name, events); err != nil {
		s.logger.Error("Failed to export calendar", "calendar", c.ID, "error", err)
	}
}

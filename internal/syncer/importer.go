package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskcal/internal/models"
	"taskcal/internal/store"
)

// Source lists the events of a Google calendar.
type Source interface {
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Event, error)
}

// ImportStore is the persistence Import needs.
type ImportStore interface {
	GetCalendar(ctx context.Context, userID, id string) (*models.Calendar, error)
	GetEvent(ctx context.Context, userID, id string) (*models.Event, error)
	ListEvents(ctx context.Context, userID string, f store.EventFilter) ([]*models.Event, error)
	CreateEvent(ctx context.Context, e *models.Event) error
}

// Import copies the events of googleCalendarID between from and to into the
// local calendar calendarID and returns how many were created. Events that
// taskcal pushed itself and events imported before are skipped.
func Import(ctx context.Context, logger *slog.Logger, st ImportStore, src Source, userID, calendarID, googleCalendarID string, from, to time.Time, dryRun bool) (int, error) {
	if _, err := st.GetCalendar(ctx, userID, calendarID); err != nil {
		return 0, fmt.Errorf("failed to load calendar %s: %w", calendarID, err)
	}
	remote, err := src.ListEvents(ctx, googleCalendarID, from, to)
	if err != nil {
		return 0, err
	}
	local, err := st.ListEvents(ctx, userID, store.EventFilter{CalendarID: calendarID})
	if err != nil {
		return 0, fmt.Errorf("failed to list events: %w", err)
	}
	known := make(map[string]bool, len(local))
	for _, e := range local {
		known[e.UID] = true
	}

	var created int
	for _, e := range remote {
		// Pushed events carry their local ID.
		if _, err := st.GetEvent(ctx, userID, e.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return created, err
		}
		if e.UID == "" {
			e.UID = e.ID
		}
		if known[e.UID] {
			continue
		}
		if dryRun {
			logger.Info("[DRY RUN] Would import event", "title", e.Title, "startTime", e.StartTime)
			continue
		}

		e.ID = ""
		e.UserID = userID
		e.CalendarID = calendarID
		if err := st.CreateEvent(ctx, e); err != nil {
			return created, fmt.Errorf("failed to import %q: %w", e.Title, err)
		}
		known[e.UID] = true
		created++
		logger.Debug("Imported event", "title", e.Title, "uid", e.UID)
	}
	logger.Info("Import finished.", "calendar", calendarID, "fetched", len(remote), "created", created)
	return created, nil
}

// Package syncer pushes local events to Google Calendar.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskcal/internal/google"
	"taskcal/internal/models"
	"taskcal/internal/store"
)

// ErrSyncInProgress is returned when the same user or event is already being synced.
var ErrSyncInProgress = errors.New("sync already in progress")

// Remote is the part of the Google Calendar client the syncer writes through.
type Remote interface {
	InsertEvent(ctx context.Context, calendarID string, e *models.Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, googleID string, e *models.Event) error
	DeleteEvent(ctx context.Context, calendarID, googleID string) error
}

// RemoteFactory returns a Remote authenticated as userID.
type RemoteFactory func(ctx context.Context, userID string) (Remote, error)

// Store is the persistence the syncer needs.
type Store interface {
	ListEvents(ctx context.Context, userID string, f store.EventFilter) ([]*models.Event, error)
	GetCalendar(ctx context.Context, userID, id string) (*models.Calendar, error)
	GetSyncLink(ctx context.Context, eventID string) (*models.SyncLink, error)
	ListSyncLinks(ctx context.Context, userID string) ([]*models.SyncLink, error)
	PutSyncLink(ctx context.Context, l *models.SyncLink) error
	DeleteSyncLink(ctx context.Context, eventID string) error
	GoogleUsers(ctx context.Context) ([]string, error)
}

// Result counts what a sync cycle did.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Syncer orchestrates the synchronization from the local database to Google Calendar.
type Syncer struct {
	logger *slog.Logger
	store  Store
	remote RemoteFactory
	guard  *Guard
	dryRun bool
	days   int
	now    func() time.Time
}

// NewSyncer creates a new Syncer that pushes events starting within the next days.
func NewSyncer(logger *slog.Logger, st Store, remote RemoteFactory, dryRun bool, days int) *Syncer {
	if days <= 0 {
		days = 30
	}
	return &Syncer{
		logger: logger,
		store:  st,
		remote: remote,
		guard:  NewGuard(),
		dryRun: dryRun,
		days:   days,
		now:    time.Now,
	}
}

// SyncAll runs SyncUser for every user with a linked Google account.
// Users already being synced are skipped.
func (s *Syncer) SyncAll(ctx context.Context) error {
	users, err := s.store.GoogleUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list google users: %w", err)
	}
	for _, id := range users {
		if _, err := s.SyncUser(ctx, id); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Info("Sync already running for user, skipping.", "user", id)
				continue
			}
			s.logger.Error("Sync cycle failed for user", "user", id, "error", err)
		}
	}
	return nil
}

// SyncUser performs a full synchronization cycle for one user: upcoming
// events are created or updated remotely and remote copies of deleted
// events are removed.
func (s *Syncer) SyncUser(ctx context.Context, userID string) (*Result, error) {
	if !s.guard.TryLock(userKey(userID)) {
		return nil, ErrSyncInProgress
	}
	defer s.guard.Unlock(userKey(userID))

	s.logger.Info("Starting sync cycle.", "user", userID)
	remote, err := s.remote(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	now := s.now()
	events, err := s.store.ListEvents(ctx, userID, store.EventFilter{From: now, To: now.AddDate(0, 0, s.days)})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	res := &Result{}
	cals := map[string]string{}
	for _, event := range events {
		created, err := s.withEventLock(event.ID, func() (bool, error) {
			return s.push(ctx, remote, cals, event)
		})
		switch {
		case errors.Is(err, ErrSyncInProgress):
			res.Skipped++
		case err != nil:
			// Continue with the next event even if one fails.
			s.logger.Error("Failed to sync event", "title", event.Title, "error", err)
			res.Failed++
		case created:
			res.Created++
		default:
			res.Updated++
		}
	}

	if err := s.prune(ctx, remote, userID, res); err != nil {
		return res, err
	}

	s.logger.Info("Sync cycle finished.", "user", userID, "created", res.Created, "updated", res.Updated,
		"deleted", res.Deleted, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// SyncEvent pushes a single event.
func (s *Syncer) SyncEvent(ctx context.Context, userID string, event *models.Event) error {
	remote, err := s.remote(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to create google client: %w", err)
	}
	_, err = s.withEventLock(event.ID, func() (bool, error) {
		return s.push(ctx, remote, map[string]string{}, event)
	})
	return err
}

// Unsync removes the remote copy of eventID, if any.
func (s *Syncer) Unsync(ctx context.Context, userID, eventID string) error {
	link, err := s.store.GetSyncLink(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if link.UserID != userID {
		return nil
	}

	remote, err := s.remote(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to create google client: %w", err)
	}
	_, err = s.withEventLock(eventID, func() (bool, error) {
		return false, s.removeRemote(ctx, remote, link)
	})
	return err
}

func (s *Syncer) withEventLock(eventID string, fn func() (bool, error)) (bool, error) {
	if !s.guard.TryLock(eventKey(eventID)) {
		return false, ErrSyncInProgress
	}
	defer s.guard.Unlock(eventKey(eventID))
	return fn()
}

// push creates or updates the remote copy of event and reports whether it was created.
func (s *Syncer) push(ctx context.Context, remote Remote, cals map[string]string, event *models.Event) (bool, error) {
	target, err := s.googleCalendar(ctx, cals, event)
	if err != nil {
		return false, err
	}

	link, err := s.store.GetSyncLink(ctx, event.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to load sync link: %w", err)
	}

	if link != nil && link.GoogleCalendarID == target {
		if s.dryRun {
			s.logger.Info("[DRY RUN] Would update event in Google Calendar", "title", event.Title, "startTime", event.StartTime)
			return false, nil
		}
		err := remote.UpdateEvent(ctx, target, link.GoogleEventID, event)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, google.ErrRemoteGone) {
			return false, err
		}
		s.logger.Warn("Remote copy disappeared, recreating.", "title", event.Title, "googleID", link.GoogleEventID)
	} else if link != nil {
		// The event moved to a calendar synced to another Google calendar.
		if s.dryRun {
			s.logger.Info("[DRY RUN] Would move event between Google calendars", "title", event.Title, "from", link.GoogleCalendarID, "to", target)
			return false, nil
		}
		if err := remote.DeleteEvent(ctx, link.GoogleCalendarID, link.GoogleEventID); err != nil {
			return false, err
		}
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would create new event in Google Calendar", "title", event.Title, "startTime", event.StartTime)
		return true, nil
	}

	googleID, err := remote.InsertEvent(ctx, target, event)
	if err != nil {
		return false, err
	}
	if err := s.store.PutSyncLink(ctx, &models.SyncLink{
		EventID:          event.ID,
		UserID:           event.UserID,
		GoogleCalendarID: target,
		GoogleEventID:    googleID,
	}); err != nil {
		return true, fmt.Errorf("event created remotely but link not saved: %w", err)
	}
	s.logger.Info("New event synced to Google Calendar.", "title", event.Title, "googleID", googleID)
	return true, nil
}

// prune deletes remote copies of events that no longer exist locally.
func (s *Syncer) prune(ctx context.Context, remote Remote, userID string, res *Result) error {
	links, err := s.store.ListSyncLinks(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list sync links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}

	all, err := s.store.ListEvents(ctx, userID, store.EventFilter{})
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	exists := make(map[string]bool, len(all))
	for _, e := range all {
		exists[e.ID] = true
	}

	for _, link := range links {
		if exists[link.EventID] {
			continue
		}
		_, err := s.withEventLock(link.EventID, func() (bool, error) {
			return false, s.removeRemote(ctx, remote, link)
		})
		if err != nil {
			s.logger.Error("Failed to remove deleted event from Google Calendar", "eventID", link.EventID, "error", err)
			res.Failed++
			continue
		}
		res.Deleted++
	}
	return nil
}

func (s *Syncer) removeRemote(ctx context.Context, remote Remote, link *models.SyncLink) error {
	if s.dryRun {
		s.logger.Info("[DRY RUN] Would delete event from Google Calendar", "googleID", link.GoogleEventID)
		return nil
	}
	if err := remote.DeleteEvent(ctx, link.GoogleCalendarID, link.GoogleEventID); err != nil {
		return err
	}
	return s.store.DeleteSyncLink(ctx, link.EventID)
}

func (s *Syncer) googleCalendar(ctx context.Context, cache map[string]string, event *models.Event) (string, error) {
	if id, ok := cache[event.CalendarID]; ok {
		return id, nil
	}
	cal, err := s.store.GetCalendar(ctx, event.UserID, event.CalendarID)
	if err != nil {
		return "", fmt.Errorf("failed to load calendar %s: %w", event.CalendarID, err)
	}
	id := cal.GoogleID
	if id == "" {
		id = google.DefaultCalendar
	}
	cache[event.CalendarID] = id
	return id, nil
}

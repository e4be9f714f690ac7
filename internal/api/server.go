// Package api serves the JSON REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"taskcal/internal/models"
	"taskcal/internal/rag"
	"taskcal/internal/store"
	"taskcal/internal/syncer"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const (
	sessionCookie = "taskcal_session"
	stateCookie   = "taskcal_oauth_state"
	sessionTTL    = 7 * 24 * time.Hour
	maxBodyBytes  = 1 << 20
)

var errBadRequest = errors.New("bad request")

// Estimator produces duration estimates.
type Estimator interface {
	Estimate(ctx context.Context, request string) (*models.Estimate, error)
}

// Syncer pushes events to Google Calendar.
type Syncer interface {
	SyncUser(ctx context.Context, userID string) (*syncer.Result, error)
	SyncEvent(ctx context.Context, userID string, e *models.Event) error
	Unsync(ctx context.Context, userID, eventID string) error
}

// Notifier emails event details to attendees on behalf of a user.
type Notifier interface {
	NotifyAttendees(ctx context.Context, userID string, e *models.Event) error
}

// Options configures optional integrations. Nil fields disable them.
type Options struct {
	Syncer        Syncer
	Notifier      Notifier
	OAuth         *oauth2.Config
	EstimateRate  float64 // per user per minute, 0 disables limiting
	SecureCookies bool
	BcryptCost    int
}

// Server holds the handler dependencies.
type Server struct {
	logger    *slog.Logger
	store     *store.Store
	estimator Estimator
	opts      Options
	limiter   *userLimiter
}

// NewServer creates a Server.
func NewServer(logger *slog.Logger, st *store.Store, est Estimator, opts Options) *Server {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Server{
		logger:    logger,
		store:     st,
		estimator: est,
		opts:      opts,
		limiter:   newUserLimiter(opts.EstimateRate),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.authed(s.handleMe))

	mux.HandleFunc("GET /api/calendars", s.authed(s.handleListCalendars))
	mux.HandleFunc("POST /api/calendars", s.authed(s.handleCreateCalendar))
	mux.HandleFunc("GET /api/calendars/{id}", s.authed(s.handleGetCalendar))
	mux.HandleFunc("PUT /api/calendars/{id}", s.authed(s.handleUpdateCalendar))
	mux.HandleFunc("DELETE /api/calendars/{id}", s.authed(s.handleDeleteCalendar))
	mux.HandleFunc("GET /api/calendars/{id}/export.ics", s.authed(s.handleExportCalendar))

	mux.HandleFunc("GET /api/calendars/{id}/events", s.authed(s.handleListEvents))
	mux.HandleFunc("POST /api/calendars/{id}/events", s.authed(s.handleCreateEvent))
	mux.HandleFunc("GET /api/events", s.authed(s.handleListEvents))
	mux.HandleFunc("GET /api/events/{id}", s.authed(s.handleGetEvent))
	mux.HandleFunc("PUT /api/events/{id}", s.authed(s.handleUpdateEvent))
	mux.HandleFunc("DELETE /api/events/{id}", s.authed(s.handleDeleteEvent))
	mux.HandleFunc("POST /api/events/{id}/sync", s.authed(s.handleSyncEvent))

	mux.HandleFunc("POST /api/estimate", s.authed(s.handleEstimate))
	mux.HandleFunc("GET /api/estimates", s.authed(s.handleListEstimates))

	mux.HandleFunc("POST /api/sync", s.authed(s.handleSync))
	mux.HandleFunc("GET /api/google/connect", s.authed(s.handleGoogleConnect))
	mux.HandleFunc("GET /api/google/callback", s.authed(s.handleGoogleCallback))

	return s.recoverer(s.requestLogger(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, r, fmt.Errorf("database unavailable: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Handled request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("Handler panicked", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// writeError maps err to a status code. Unexpected errors are logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, rag.ErrEmptyRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, syncer.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, rag.ErrNoEstimate):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, errNotConfigured):
		status = http.StatusNotImplemented
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"

	"taskcal/internal/google"
	"taskcal/internal/models"

	"golang.org/x/oauth2"
)

var errNotConfigured = errors.New("google integration is not configured")

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, u *models.User) {
	if s.opts.Syncer == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	res, err := s.opts.Syncer.SyncUser(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncEvent(w http.ResponseWriter, r *http.Request, u *models.User) {
	if s.opts.Syncer == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	e, err := s.store.GetEvent(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.opts.Syncer.SyncEvent(r.Context(), u.ID, e); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// handleGoogleConnect redirects to Google's consent screen.
func (s *Server) handleGoogleConnect(w http.ResponseWriter, r *http.Request, u *models.User) {
	if s.opts.OAuth == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		s.writeError(w, r, err)
		return
	}
	state := hex.EncodeToString(b)
	http.SetCookie(w, s.cookie(stateCookie, state, 600))
	url := s.opts.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request, u *models.User) {
	if s.opts.OAuth == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		s.writeError(w, r, badRequest("google authorization failed: %s", msg))
		return
	}
	c, err := r.Cookie(stateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(c.Value), []byte(q.Get("state"))) != 1 {
		s.writeError(w, r, badRequest("invalid oauth state"))
		return
	}
	http.SetCookie(w, s.cookie(stateCookie, "", -1))

	code := q.Get("code")
	if code == "" {
		s.writeError(w, r, badRequest("missing authorization code"))
		return
	}
	if _, err := google.Exchange(r.Context(), s.opts.OAuth, s.store, u.ID, code); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("Linked Google account", "user", u.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"taskcal/internal/models"
	"taskcal/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var errUnauthorized = errors.New("authentication required")

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if !strings.Contains(in.Email, "@") {
		s.writeError(w, r, badRequest("a valid email is required"))
		return
	}
	if len(in.Password) < 8 {
		s.writeError(w, r, badRequest("password must be at least 8 characters"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u := &models.User{Email: in.Email, Name: strings.TrimSpace(in.Name), PasswordHash: string(hash)}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("Registered user", "user", u.ID)

	if err := s.startSession(w, r, u); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.store.GetUserByEmail(r.Context(), in.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, errUnauthorized)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		s.writeError(w, r, errUnauthorized)
		return
	}

	if err := s.startSession(w, r, u); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := s.store.DeleteSession(r.Context(), c.Value); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	http.SetCookie(w, s.cookie(sessionCookie, "", -1))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, u *models.User) {
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *models.User) error {
	sess, err := s.store.CreateSession(r.Context(), u.ID, sessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(sessionCookie, sess.Token, int(sessionTTL.Seconds())))
	return nil
}

func (s *Server) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *models.User)

// authed resolves the session cookie to a user or answers 401.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.currentUser(r.Context(), r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, u)
	}
}

func (s *Server) currentUser(ctx context.Context, r *http.Request) (*models.User, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, errUnauthorized
	}
	sess, err := s.store.GetSession(ctx, c.Value)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errUnauthorized
	}
	return u, err
}

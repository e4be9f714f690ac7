package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"taskcal/internal/models"

	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("too many estimate requests, try again later")

type estimateInput struct {
	Request string `json:"request"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request, u *models.User) {
	var in estimateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	est, err := s.estimate(r.Context(), u, in.Request)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) handleListEstimates(w http.ResponseWriter, r *http.Request, u *models.User) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, badRequest("invalid limit %q", v))
			return
		}
		limit = n
	}
	ests, err := s.store.ListEstimates(r.Context(), u.ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ests == nil {
		ests = []*models.Estimate{}
	}
	writeJSON(w, http.StatusOK, ests)
}

// estimate runs the estimator on behalf of u and stores the result.
func (s *Server) estimate(ctx context.Context, u *models.User, request string) (*models.Estimate, error) {
	if !s.limiter.Allow(u.ID) {
		return nil, errRateLimited
	}
	est, err := s.estimator.Estimate(ctx, request)
	if err != nil {
		return nil, err
	}
	est.UserID = u.ID
	if err := s.store.InsertEstimate(ctx, est); err != nil {
		return nil, err
	}
	return est, nil
}

// userLimiter keeps one token bucket per user.
type userLimiter struct {
	perMinute float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perMinute float64) *userLimiter {
	return &userLimiter{perMinute: perMinute, limiters: map[string]*rate.Limiter{}}
}

func (l *userLimiter) Allow(userID string) bool {
	if l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		burst := max(1, int(l.perMinute))
		lim = rate.NewLimiter(rate.Limit(l.perMinute/60), burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

package myMiddleware

import (
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles REST calls per authenticated user with a token bucket.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[int]*rate.Limiter
	rps   rate.Limit
	burst int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{m: make(map[int]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (p *RateLimiter) get(userID int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[userID]; ok {
		return l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[userID] = l
	return l
}

func (p *RateLimiter) Allow(userID int) bool {
	return p.get(userID).Allow()
}

// Handle must run after AuthMiddleware.
func (p *RateLimiter) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFrom(r.Context())
		if !p.Allow(userID) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

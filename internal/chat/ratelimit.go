package chat

import (
	"sync"
	"time"
)

const (
	DefaultRateLimit    = 5
	DefaultRateInterval = 5 * time.Second
)

// RateLimiter throttles sends per user with a sliding window: at most limit
// accepted sends within any interval. State is process-local.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[int][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if interval <= 0 {
		interval = DefaultRateInterval
	}
	return &RateLimiter{
		windows:  make(map[int][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the time source, used by tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

func (l *RateLimiter) Allow(userID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := prune(l.windows[userID], now, l.interval)
	if len(recent) >= l.limit {
		l.windows[userID] = recent
		return false
	}
	l.windows[userID] = append(recent, now)
	return true
}

// Sweep drops windows with no timestamp left inside the interval.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for userID, window := range l.windows {
		if len(prune(window, now, l.interval)) == 0 {
			delete(l.windows, userID)
			removed++
		}
	}
	return removed
}

// prune keeps timestamps newer than interval; window is in ascending order.
func prune(window []time.Time, now time.Time, interval time.Duration) []time.Time {
	i := 0
	for i < len(window) && now.Sub(window[i]) >= interval {
		i++
	}
	return window[i:]
}

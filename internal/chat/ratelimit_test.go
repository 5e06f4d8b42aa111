package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_SixthSendRejected(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(5, 5*time.Second).WithClock(clock.Now)

	// Given five sends in quick succession
	for i := 0; i < 5; i++ {
		req.True(limiter.Allow(1), "send %d should be accepted", i+1)
		clock.Advance(100 * time.Millisecond)
	}

	// When a sixth send arrives inside the window
	// Then it is rejected
	req.False(limiter.Allow(1))

	// And other users are unaffected
	req.True(limiter.Allow(2))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(5, 5*time.Second).WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		req.True(limiter.Allow(1))
		clock.Advance(time.Second)
	}
	// t=5s: the first send is exactly one interval old and no longer counts
	req.True(limiter.Allow(1))
	// the second send (t=1s) is still inside the window
	req.False(limiter.Allow(1))

	clock.Advance(time.Second)
	req.True(limiter.Allow(1))
}

func TestRateLimiter_RejectedSendsDoNotCount(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(2, time.Second).WithClock(clock.Now)

	req.True(limiter.Allow(7))
	req.True(limiter.Allow(7))
	for i := 0; i < 10; i++ {
		req.False(limiter.Allow(7))
	}

	clock.Advance(time.Second)
	req.True(limiter.Allow(7))
	req.True(limiter.Allow(7))
}

func TestRateLimiter_Defaults(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(0, 0)
	req.Equal(DefaultRateLimit, limiter.limit)
	req.Equal(DefaultRateInterval, limiter.interval)
}

func TestRateLimiter_Sweep(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(5, 5*time.Second).WithClock(clock.Now)

	limiter.Allow(1)
	clock.Advance(3 * time.Second)
	limiter.Allow(2)

	clock.Advance(3 * time.Second)
	req.Equal(1, limiter.Sweep())
	req.NotContains(limiter.windows, 1)
	req.Contains(limiter.windows, 2)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(5, time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(42) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	req.Equal(5, accepted)
}

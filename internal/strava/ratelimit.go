package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limits describes the API quota
type Limits struct {
	Short       int           // requests per ShortWindow
	ShortWindow time.Duration
	Daily       int
	MinInterval time.Duration // spacing between consecutive requests
}

// DefaultLimits returns Strava's published read limits:
// 100 requests per 15 minutes and 1000 per day.
func DefaultLimits() Limits {
	return Limits{
		Short:       100,
		ShortWindow: 15 * time.Minute,
		Daily:       1000,
		MinInterval: 150 * time.Millisecond,
	}
}

// RateLimiter manages Strava API rate limits
type RateLimiter struct {
	mu     sync.Mutex
	limits Limits

	shortUsage    int
	shortResetsAt time.Time

	dailyUsage    int
	dailyResetsAt time.Time

	lastRequest time.Time
}

// NewRateLimiter creates a rate limiter with the given quota
func NewRateLimiter(limits Limits) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		limits:        limits,
		shortResetsAt: now.Add(limits.ShortWindow),
		dailyResetsAt: nextMidnight(now),
	}
}

func nextMidnight(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// Wait blocks until a request can be made without exceeding rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		wait := r.delay(time.Now())
		if wait <= 0 {
			break
		}
		// Release the lock while sleeping so headers can still be applied.
		r.mu.Unlock()
		err := sleep(ctx, wait)
		r.mu.Lock()
		if err != nil {
			return err
		}
	}

	r.shortUsage++
	r.dailyUsage++
	r.lastRequest = time.Now()
	return nil
}

// delay returns how long to wait before the next request, resetting
// expired windows. Callers hold r.mu.
func (r *RateLimiter) delay(now time.Time) time.Duration {
	if now.After(r.shortResetsAt) {
		r.shortUsage = 0
		r.shortResetsAt = now.Add(r.limits.ShortWindow)
	}
	if now.After(r.dailyResetsAt) {
		r.dailyUsage = 0
		r.dailyResetsAt = nextMidnight(now)
	}

	if r.dailyUsage >= r.limits.Daily {
		return r.dailyResetsAt.Sub(now)
	}
	if r.shortUsage >= r.limits.Short {
		return r.shortResetsAt.Sub(now)
	}
	if elapsed := now.Sub(r.lastRequest); elapsed < r.limits.MinInterval {
		return r.limits.MinInterval - elapsed
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateFromHeaders updates rate limit state from Strava response headers
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strava returns: X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512"
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.shortUsage, r.dailyUsage = short, daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.limits.Short, r.limits.Daily = short, daily
	}
}

func parsePair(v string) (first, second int, ok bool) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	first, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	second, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return first, second, true
}

// Status returns current rate limit status
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limits.Short - r.shortUsage, r.limits.Daily - r.dailyUsage
}

package strava

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterCountsRequests(t *testing.T) {
	rl := NewRateLimiter(Limits{Short: 5, ShortWindow: time.Minute, Daily: 10})

	for range 3 {
		require.NoError(t, rl.Wait(context.Background()))
	}
	short, daily := rl.Status()
	assert.Equal(t, 2, short)
	assert.Equal(t, 7, daily)
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	rl := NewRateLimiter(Limits{Short: 1, ShortWindow: time.Hour, Daily: 10})
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}

func TestRateLimiterMinInterval(t *testing.T) {
	rl := NewRateLimiter(Limits{Short: 10, ShortWindow: time.Minute, Daily: 10, MinInterval: 30 * time.Millisecond})

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestUpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name      string
		limit     string
		usage     string
		wantShort int
		wantDaily int
	}{
		{"both headers", "100,1000", "34,512", 66, 488},
		{"spaces", "200, 2000", " 1, 2", 199, 1998},
		{"malformed usage ignored", "100,1000", "abc", 100, 1000},
		{"single value ignored", "50", "10", 100, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(DefaultLimits())
			h := http.Header{}
			h.Set("X-RateLimit-Limit", tt.limit)
			h.Set("X-RateLimit-Usage", tt.usage)
			rl.UpdateFromHeaders(h)

			short, daily := rl.Status()
			assert.Equal(t, tt.wantShort, short)
			assert.Equal(t, tt.wantDaily, daily)
		})
	}
}

package strava

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastLimiter() *RateLimiter {
	return NewRateLimiter(Limits{Short: 100, ShortWindow: time.Minute, Daily: 1000})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(nil, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimiter(fastLimiter()))
}

const activityJSON = `{
	"id": 77,
	"name": "Conconi ramp",
	"type": "Run",
	"sport_type": "Run",
	"start_date": "2026-03-14T08:30:00Z",
	"start_date_local": "2026-03-14T09:30:00Z",
	"elapsed_time": 1500,
	"has_heartrate": true
}`

const streamsJSON = `{
	"time": {"data": [0, 1, 2, 3, 4], "series_type": "distance", "original_size": 5, "resolution": "high"},
	"heartrate": {"data": [120, 122, null, 126, 128], "series_type": "distance", "original_size": 5, "resolution": "high"},
	"velocity_smooth": {"data": [2.5, 2.6, 2.7, null, 2.9], "series_type": "distance", "original_size": 5, "resolution": "high"}
}`

func stravaMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/activities/77", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "200,2000")
		w.Header().Set("X-RateLimit-Usage", "10,100")
		w.Write([]byte(activityJSON))
	})
	mux.HandleFunc("/activities/77/streams", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "time,heartrate,velocity_smooth", r.URL.Query().Get("keys"))
		assert.Equal(t, "true", r.URL.Query().Get("key_by_type"))
		w.Write([]byte(streamsJSON))
	})
	mux.HandleFunc("/activities/404", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Record Not Found"}`, http.StatusNotFound)
	})
	return mux
}

func TestGetActivity(t *testing.T) {
	c := newTestClient(t, stravaMux(t))

	activity, err := c.GetActivity(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, int64(77), activity.ID)
	assert.Equal(t, "Conconi ramp", activity.Name)
	assert.True(t, activity.HasHeartrate)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC), activity.StartDate.UTC())

	short, daily := c.RateLimitStatus()
	assert.Equal(t, 190, short)
	assert.Equal(t, 1900, daily)
}

func TestGetActivityStreams(t *testing.T) {
	c := newTestClient(t, stravaMux(t))

	streams, err := c.GetActivityStreams(context.Background(), 77)
	require.NoError(t, err)
	require.True(t, streams.HasHeartrate())
	require.True(t, streams.HasVelocity())
	assert.Len(t, streams.Time.Data, 5)
	assert.Nil(t, streams.Heartrate.Data[2])
	assert.Nil(t, streams.VelocitySmooth.Data[3])
}

func TestGetActivityNotFound(t *testing.T) {
	c := newTestClient(t, stravaMux(t))

	_, err := c.GetActivity(context.Background(), 404)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Record Not Found")
}

func TestStreamSource(t *testing.T) {
	c := newTestClient(t, stravaMux(t))
	src := StreamSource{Client: c, ActivityID: 77}

	assert.Equal(t, "strava:77", src.Describe())

	samples, start, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{120, 122, 128}, samples.HeartRate)
	assert.Equal(t, []float64{2.5, 2.6, 2.9}, samples.Speed)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC), start.UTC())
}

func TestStreamSourceMissingStreams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/activities/5", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 5, "start_date": "2026-01-01T00:00:00Z"}`))
	})
	mux.HandleFunc("/activities/5/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"time": {"data": [0, 1]}}`))
	})
	c := newTestClient(t, mux)

	_, _, err := StreamSource{Client: c, ActivityID: 5}.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoStreams)
}

func TestPairStreamsUnequalLengths(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	streams := &Streams{
		Heartrate:      &StreamData[*float64]{Data: []*float64{f(130), f(131), f(132)}},
		VelocitySmooth: &StreamData[*float64]{Data: []*float64{f(3.0), f(3.1)}},
	}

	samples := PairStreams(streams)
	assert.Equal(t, []float64{130, 131}, samples.HeartRate)
	assert.Equal(t, []float64{3.0, 3.1}, samples.Speed)
}

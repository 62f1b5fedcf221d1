package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const BaseURL = "https://www.strava.com/api/v3"

// Client is a Strava API client
type Client struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	baseURL     string
	log         zerolog.Logger
}

// Option customises a Client
type Option func(*Client)

// WithBaseURL points the client at another API root (used by tests)
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the authenticated HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRateLimiter replaces the default Strava limiter
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.rateLimiter = rl }
}

// NewClient creates a new Strava API client
func NewClient(tokenSource oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		rateLimiter: NewRateLimiter(DefaultLimits()),
		baseURL:     BaseURL,
		log:         zerolog.Nop(),
	}
	if tokenSource != nil {
		c.httpClient = oauth2.NewClient(context.Background(), tokenSource)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

// GetActivity fetches an activity summary
func (c *Client) GetActivity(ctx context.Context, activityID int64) (*Activity, error) {
	var activity Activity
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d", activityID), nil, &activity); err != nil {
		return nil, fmt.Errorf("fetching activity %d: %w", activityID, err)
	}
	return &activity, nil
}

// GetActivityStreams fetches the heart rate and speed streams of an activity
func (c *Client) GetActivityStreams(ctx context.Context, activityID int64) (*Streams, error) {
	params := url.Values{}
	params.Set("keys", "time,heartrate,velocity_smooth")
	params.Set("key_by_type", "true")

	var streams Streams
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d/streams", activityID), params, &streams); err != nil {
		return nil, fmt.Errorf("fetching streams for activity %d: %w", activityID, err)
	}
	return &streams, nil
}

// RateLimitStatus returns the current rate limit status
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.rateLimiter.Status()
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Update rate limiter from response headers
	c.rateLimiter.UpdateFromHeaders(resp.Header)
	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("strava request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// APIError is a non-200 answer from the Strava API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

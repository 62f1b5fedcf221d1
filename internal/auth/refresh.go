package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// RefreshMargin is how long before expiry a token is renewed
const RefreshMargin = 60 * time.Second

// TokenSource renews the access token when it nears expiry and hands
// each renewed token to onRefresh for persistence.
type TokenSource struct {
	mu        sync.Mutex
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(context.Context, *oauth2.Token) error
	log       zerolog.Logger
	now       func() time.Time
}

// NewTokenSource creates a TokenSource starting from token
func NewTokenSource(cfg *oauth2.Config, token *oauth2.Token, onRefresh func(context.Context, *oauth2.Token) error, log zerolog.Logger) *TokenSource {
	return &TokenSource{
		config:    cfg,
		token:     token,
		onRefresh: onRefresh,
		log:       log,
		now:       time.Now,
	}
}

// Token implements oauth2.TokenSource
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !expiring(ts.token, ts.now()) {
		return ts.token, nil
	}

	ctx := context.Background()
	// Clearing the access token forces the oauth2 package to use the refresh token.
	stale := *ts.token
	stale.AccessToken = ""
	fresh, err := ts.config.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, err
	}
	ts.log.Debug().Time("expires", fresh.Expiry).Msg("strava token refreshed")

	if ts.onRefresh != nil {
		if err := ts.onRefresh(ctx, fresh); err != nil {
			return nil, err
		}
	}

	ts.token = fresh
	return fresh, nil
}

// Current returns the held token without refreshing
func (ts *TokenSource) Current() *oauth2.Token {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token
}

// Package auth handles the Strava OAuth login used to import ramp tests.
package auth

import (
	"time"

	"golang.org/x/oauth2"

	"conconi/internal/store"
)

// Endpoint is Strava's OAuth endpoint
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.strava.com/oauth/authorize",
	TokenURL: "https://www.strava.com/oauth/token",
}

// Scope grants read access to private activities. Strava separates
// scopes with commas, so this is a single value.
const Scope = "read,activity:read_all"

// Config holds the OAuth client credentials
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string          // defaults to the local callback server
	Endpoint     oauth2.Endpoint // defaults to Strava's
}

// NewOAuthConfig creates an oauth2.Config from our Config
func NewOAuthConfig(cfg Config) *oauth2.Config {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = Endpoint
	}
	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = CallbackURL()
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirect,
		Scopes:       []string{Scope},
	}
}

// Result is a completed login
type Result struct {
	Token     *oauth2.Token
	AthleteID int64
}

// Record converts the login into the stored form
func (r *Result) Record() *store.Auth {
	return &store.Auth{
		AthleteID:    r.AthleteID,
		AccessToken:  r.Token.AccessToken,
		RefreshToken: r.Token.RefreshToken,
		ExpiresAt:    r.Token.Expiry,
	}
}

// TokenFromRecord rebuilds a token from stored credentials
func TokenFromRecord(a *store.Auth) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       a.ExpiresAt,
	}
}

// ExtractAthleteID reads the athlete ID Strava embeds in the token
// response. Zero when absent.
func ExtractAthleteID(token *oauth2.Token) int64 {
	athlete, ok := token.Extra("athlete").(map[string]any)
	if !ok {
		return 0
	}
	switch id := athlete["id"].(type) {
	case float64:
		return int64(id)
	case int64:
		return id
	}
	return 0
}

// expiring reports whether the token is within the refresh margin
func expiring(token *oauth2.Token, now time.Time) bool {
	return !token.Expiry.IsZero() && token.Expiry.Sub(now) <= RefreshMargin
}

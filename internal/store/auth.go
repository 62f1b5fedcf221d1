package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNoAuth is returned when no Strava authorization is stored
var ErrNoAuth = errors.New("no authentication stored")

// GetAuth retrieves the stored Strava tokens
func (s *Store) GetAuth(ctx context.Context) (*Auth, error) {
	var auth Auth
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT athlete_id, access_token, refresh_token, expires_at
		FROM auth
		WHERE id = 1
	`).Scan(&auth.AthleteID, &auth.AccessToken, &auth.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAuth
	}
	if err != nil {
		return nil, err
	}

	auth.ExpiresAt = time.Unix(expiresAt, 0)
	return &auth, nil
}

// SaveAuth replaces the stored tokens after a successful login
func (s *Store) SaveAuth(ctx context.Context, auth *Auth) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth (id, athlete_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, auth.AthleteID, auth.AccessToken, auth.RefreshToken, auth.ExpiresAt.Unix())
	return err
}

// UpdateTokens persists a refreshed token pair. ErrNoAuth if nobody logged in.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE auth
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, accessToken, refreshToken, expiresAt.Unix())
	if err != nil {
		return err
	}
	return requireAffected(result, ErrNoAuth)
}

// DeleteAuth forgets the stored tokens
func (s *Store) DeleteAuth(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM auth WHERE id = 1`)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrNoAuth)
}

// requireAffected returns notFound when the statement touched no rows
func requireAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

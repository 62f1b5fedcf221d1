package store

import "time"

// Auth represents OAuth tokens for Strava API access
type Auth struct {
	AthleteID    int64     `db:"athlete_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// TestRecord is one stored threshold test
type TestRecord struct {
	ID             string    `db:"id"`
	User           string    `db:"username"`
	Date           string    `db:"test_date"` // YYYY-MM-DD
	ThresholdHR    float64   `db:"threshold_hr"`
	ThresholdSpeed float64   `db:"threshold_speed"` // m/s
	Pace           string    `db:"pace"`            // min:ss per km
	HeartRate      []float64 `db:"hr_samples"`      // trimmed recording
	Speed          []float64 `db:"speed_samples"`
	CILow          *float64  `db:"ci_low"` // nullable
	CIHigh         *float64  `db:"ci_high"`
	Warning        string    `db:"warning"`
	Source         string    `db:"source"` // file name or strava:<activity id>
	CreatedAt      time.Time `db:"created_at"`
}

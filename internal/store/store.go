package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the application's data access layer
type Store struct {
	db *sql.DB
}

// newStore creates a Store from a database connection.
func newStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ValidateDate checks that date is a calendar date in YYYY-MM-DD form
func ValidateDate(date string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

func encodeSamples(values []float64) (string, error) {
	if values == nil {
		values = []float64{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding samples: %w", err)
	}
	return string(data), nil
}

func decodeSamples(data string) ([]float64, error) {
	var values []float64
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("decoding samples: %w", err)
	}
	return values, nil
}

func ptrToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullFloat64ToPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

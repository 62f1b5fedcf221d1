package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrTestNotFound is returned when no test is stored for a user and date
var ErrTestNotFound = errors.New("test not found")

// ErrTestExists is returned when a user already has a test on that date
var ErrTestExists = errors.New("a test is already recorded for this date")

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// Open opens the SQLite database at path, creating it if necessary
func Open(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}

	return newStore(db), nil
}

// setup enables foreign keys and creates the schema
func setup(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

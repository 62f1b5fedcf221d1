package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Authentication (singleton row)
		`CREATE TABLE IF NOT EXISTS auth (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			athlete_id INTEGER NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Threshold tests, one per user and day. Sample arrays are JSON.
		`CREATE TABLE IF NOT EXISTS tests (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			test_date TEXT NOT NULL,
			threshold_hr REAL NOT NULL,
			threshold_speed REAL NOT NULL,
			pace TEXT NOT NULL,
			hr_samples TEXT NOT NULL,
			speed_samples TEXT NOT NULL,
			ci_low REAL,
			ci_high REAL,
			warning TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (username, test_date)
		)`,

		// Superseded by the unique (username, test_date) index.
		`DROP INDEX IF EXISTS idx_tests_created_at`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

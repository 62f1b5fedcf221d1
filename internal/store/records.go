package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const testColumns = `id, username, test_date, threshold_hr, threshold_speed, pace,
	hr_samples, speed_samples, ci_low, ci_high, warning, source, created_at`

// AppendTest stores a new test. ID and CreatedAt are filled in when empty.
// Returns ErrTestExists if the user already has a test on that date.
func (s *Store) AppendTest(ctx context.Context, t *TestRecord) error {
	if err := ValidateDate(t.Date); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	hr, err := encodeSamples(t.HeartRate)
	if err != nil {
		return err
	}
	speed, err := encodeSamples(t.Speed)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if exists, err := testExists(ctx, tx, t.User, t.Date); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s on %s", ErrTestExists, t.User, t.Date)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tests (`+testColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.User, t.Date, t.ThresholdHR, t.ThresholdSpeed, t.Pace,
		hr, speed, ptrToNullFloat64(t.CILow), ptrToNullFloat64(t.CIHigh),
		t.Warning, t.Source, t.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting test: %w", err)
	}

	return tx.Commit()
}

// ListTests returns a user's tests ordered by date, oldest first
func (s *Store) ListTests(ctx context.Context, user string) ([]TestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+testColumns+`
		FROM tests
		WHERE username = ?
		ORDER BY test_date ASC, created_at ASC
	`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTests(rows)
}

// GetTest returns the user's test on date
func (s *Store) GetTest(ctx context.Context, user, date string) (*TestRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+testColumns+`
		FROM tests
		WHERE username = ? AND test_date = ?
	`, user, date)
	return scanTest(row)
}

// DeleteTest removes the user's test on date
func (s *Store) DeleteTest(ctx context.Context, user, date string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE username = ? AND test_date = ?`, user, date)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrTestNotFound)
}

// UpdateTestDate moves a test to another date. Moving onto a date that
// already holds a test fails with ErrTestExists.
func (s *Store) UpdateTestDate(ctx context.Context, user, oldDate, newDate string) error {
	if err := ValidateDate(newDate); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	found, err := testExists(ctx, tx, user, oldDate)
	if err != nil {
		return err
	}
	if !found {
		return ErrTestNotFound
	}
	if oldDate == newDate {
		return nil
	}

	if taken, err := testExists(ctx, tx, user, newDate); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("%w: %s on %s", ErrTestExists, user, newDate)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tests SET test_date = ? WHERE username = ? AND test_date = ?
	`, newDate, user, oldDate); err != nil {
		return fmt.Errorf("updating test date: %w", err)
	}

	return tx.Commit()
}

func testExists(ctx context.Context, tx *sql.Tx, user, date string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tests WHERE username = ? AND test_date = ?`, user, date).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking existing test: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTest scans a single test from a row
func scanTest(row *sql.Row) (*TestRecord, error) {
	t, err := scanTestFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTestNotFound
	}
	return t, err
}

// scanTests scans multiple tests from rows
func scanTests(rows *sql.Rows) ([]TestRecord, error) {
	var tests []TestRecord
	for rows.Next() {
		t, err := scanTestFrom(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}

func scanTestFrom(sc scanner) (*TestRecord, error) {
	var t TestRecord
	var hr, speed, createdAt string
	var ciLow, ciHigh sql.NullFloat64

	err := sc.Scan(
		&t.ID, &t.User, &t.Date, &t.ThresholdHR, &t.ThresholdSpeed, &t.Pace,
		&hr, &speed, &ciLow, &ciHigh, &t.Warning, &t.Source, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if t.HeartRate, err = decodeSamples(hr); err != nil {
		return nil, fmt.Errorf("test %s heart rate: %w", t.ID, err)
	}
	if t.Speed, err = decodeSamples(speed); err != nil {
		return nil, fmt.Errorf("test %s speed: %w", t.ID, err)
	}
	t.CILow = nullFloat64ToPtr(ciLow)
	t.CIHigh = nullFloat64ToPtr(ciHigh)

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	return &t, nil
}

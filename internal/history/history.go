// Copyright 2026 The Ferrymon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history archives terminal run results. The result.json snapshot
// is last-run-wins by design; this SQLite archive is where past runs
// remain queryable.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferrymon/ferrymon/internal/state"
)

// Archive stores one row per terminal run result.
type Archive struct {
	db *sql.DB
}

// Open opens (and migrates) the archive at path. Use ":memory:" in tests.
func Open(path string) (*Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	// WAL keeps a concurrent `ferrymon history` read from blocking the
	// daemon's write.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to archive: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}

	return a, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		success INTEGER NOT NULL,
		phase TEXT NOT NULL,
		confirmation_number TEXT,
		available INTEGER NOT NULL DEFAULT 0,
		checks INTEGER NOT NULL DEFAULT 0,
		elapsed_seconds REAL NOT NULL DEFAULT 0,
		booking_failed_step TEXT,
		booking_error TEXT,
		error TEXT,
		finished_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	`

	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Entry is one archived run.
type Entry struct {
	RunID              string
	Success            bool
	Phase              state.Phase
	ConfirmationNumber string
	Available          bool
	Checks             int
	ElapsedSeconds     float64
	BookingFailedStep  string
	BookingError       string
	Error              string
	FinishedAt         time.Time
}

// Record archives a terminal result. Recording the same run twice replaces
// the earlier row, so a retried write stays idempotent.
func (a *Archive) Record(ctx context.Context, res *state.Result) error {
	var confirmation sql.NullString
	if res.ConfirmationNumber != nil {
		confirmation = sql.NullString{String: *res.ConfirmationNumber, Valid: true}
	}

	var available bool
	var checks int
	var elapsed float64
	if res.Availability != nil {
		available = res.Availability.Available
		checks = res.Availability.Checks
		elapsed = res.Availability.Elapsed
	}

	var failedStep, bookingErr sql.NullString
	if res.Booking != nil {
		if res.Booking.FailedStep != "" {
			failedStep = sql.NullString{String: res.Booking.FailedStep, Valid: true}
		}
		if res.Booking.Error != "" {
			bookingErr = sql.NullString{String: res.Booking.Error, Valid: true}
		}
	}

	query := `
	INSERT INTO runs (run_id, success, phase, confirmation_number, available,
	                  checks, elapsed_seconds, booking_failed_step, booking_error,
	                  error, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		success = excluded.success,
		phase = excluded.phase,
		confirmation_number = excluded.confirmation_number,
		available = excluded.available,
		checks = excluded.checks,
		elapsed_seconds = excluded.elapsed_seconds,
		booking_failed_step = excluded.booking_failed_step,
		booking_error = excluded.booking_error,
		error = excluded.error,
		finished_at = excluded.finished_at
	`

	var errText sql.NullString
	if res.Error != "" {
		errText = sql.NullString{String: res.Error, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, query,
		res.RunID, res.Success, string(res.Phase), confirmation, available,
		checks, elapsed, failedStep, bookingErr, errText, res.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first. A limit of 0 returns
// everything.
func (a *Archive) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
	SELECT run_id, success, phase, confirmation_number, available, checks,
	       elapsed_seconds, booking_failed_step, booking_error, error, finished_at
	FROM runs
	ORDER BY finished_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var confirmation, failedStep, bookingErr, errText sql.NullString
		var phase string
		if err := rows.Scan(&e.RunID, &e.Success, &phase, &confirmation,
			&e.Available, &e.Checks, &e.ElapsedSeconds, &failedStep,
			&bookingErr, &errText, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		e.Phase = state.Phase(phase)
		e.ConfirmationNumber = confirmation.String
		e.BookingFailedStep = failedStep.String
		e.BookingError = bookingErr.String
		e.Error = errText.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

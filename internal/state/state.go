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

// Package state persists the daemon's externally observable state: the
// status snapshot, the final result record, and the append-only log stream.
// Everything lives in one directory so a caller with filesystem access can
// reconstruct full daemon state without running any command, and all
// snapshot writes are whole-file replacements so readers never observe a
// torn mix of old and new content.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNoLogs is returned when the log stream has never been created.
	ErrNoLogs = errors.New("no logs (daemon has never run)")

	// ErrNoSnapshot is returned when no status snapshot exists yet.
	ErrNoSnapshot = errors.New("no status snapshot")

	// ErrNoResult is returned when no run has reached a terminal state yet.
	ErrNoResult = errors.New("no result record")
)

// Phase is the workflow phase recorded in snapshots and results.
type Phase string

const (
	PhaseMonitoring Phase = "monitoring"
	PhaseBooking    Phase = "booking"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Snapshot is the mutable status record, overwritten on every transition.
// External readers treat it as read-only.
type Snapshot struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`

	// Echoed monitoring parameters so status output stands alone.
	From string `json:"from"`
	To   string `json:"to"`
	Date string `json:"date"`
	Time string `json:"time"`

	// Cycle counts monitoring cycles in continuous mode, starting at 1.
	Cycle int `json:"cycle"`

	// ConfigPath records the configuration file this run was started with,
	// so full daemon state can be reconstructed from the state dir alone.
	ConfigPath string `json:"config_path,omitempty"`
}

// Availability is the prober's recorded outcome.
type Availability struct {
	Available bool    `json:"available"`
	Elapsed   float64 `json:"elapsed"`
	Checks    int     `json:"checks"`
	Price     string  `json:"price,omitempty"`
	Status    string  `json:"status,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Booking is the executor's recorded outcome.
type Booking struct {
	Success            bool   `json:"success"`
	ConfirmationNumber string `json:"confirmationNumber,omitempty"`
	FailedStep         string `json:"failedStep,omitempty"`
	Error              string `json:"error,omitempty"`
	RaceCondition      bool   `json:"raceCondition,omitempty"`
	DryRun             bool   `json:"dryRun"`
}

// Result is the authoritative terminal record of a run, written exactly
// once per terminal state. A new run replaces it wholesale
// (last-run-wins); callers needing history use the archive instead.
type Result struct {
	RunID     string    `json:"run_id"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Phase     Phase     `json:"phase"`

	// ConfirmationNumber is null unless a booking succeeded. It is kept
	// nullable (not omitted) so consumers can distinguish "no booking"
	// from an absent field.
	ConfirmationNumber *string `json:"confirmationNumber"`

	// Availability survives even when a subsequent booking fails: the
	// "became available" fact and the "booking failed" fact are both
	// recoverable from this record.
	Availability *Availability `json:"availability,omitempty"`
	Booking      *Booking      `json:"booking,omitempty"`

	Error string `json:"error,omitempty"`
}

// Store provides access to the colocated state files.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// PIDPath returns the path of the daemon handle file.
func (s *Store) PIDPath() string { return filepath.Join(s.dir, "ferrymon.pid") }

// LogPath returns the path of the append-only daemon log.
func (s *Store) LogPath() string { return filepath.Join(s.dir, "daemon.log") }

// EventLogPath returns the path of the lifecycle audit log.
func (s *Store) EventLogPath() string { return filepath.Join(s.dir, "lifecycle.log") }

// HistoryPath returns the path of the run-history database.
func (s *Store) HistoryPath() string { return filepath.Join(s.dir, "history.db") }

// TokenPath returns the path of the live-booking confirmation token.
func (s *Store) TokenPath() string { return filepath.Join(s.dir, "live-confirm.token") }

func (s *Store) snapshotPath() string { return filepath.Join(s.dir, "status.json") }
func (s *Store) resultPath() string   { return filepath.Join(s.dir, "result.json") }

// WriteSnapshot atomically replaces the status snapshot.
func (s *Store) WriteSnapshot(snap *Snapshot) error {
	return s.writeJSON(s.snapshotPath(), snap)
}

// ReadSnapshot reads the current status snapshot.
// Returns ErrNoSnapshot if none exists.
func (s *Store) ReadSnapshot() (*Snapshot, error) {
	var snap Snapshot
	if err := s.readJSON(s.snapshotPath(), &snap); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return &snap, nil
}

// ClearSnapshot removes the status snapshot. Used when a fresh run starts
// so status never reports a previous run's phase.
func (s *Store) ClearSnapshot() error {
	if err := os.Remove(s.snapshotPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// WriteResult atomically replaces the terminal result record.
func (s *Store) WriteResult(res *Result) error {
	return s.writeJSON(s.resultPath(), res)
}

// ReadResult reads the last terminal result record.
// Returns ErrNoResult if no run has completed yet.
func (s *Store) ReadResult() (*Result, error) {
	var res Result
	if err := s.readJSON(s.resultPath(), &res); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoResult
		}
		return nil, err
	}
	return &res, nil
}

// AppendLog appends one timestamped line to the log stream.
func (s *Store) AppendLog(line string) error {
	f, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log stream: %w", err)
	}
	defer f.Close()

	stamped := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339), strings.TrimRight(line, "\n"))
	if _, err := f.WriteString(stamped); err != nil {
		return fmt.Errorf("failed to append log line: %w", err)
	}
	return nil
}

// TailLog returns the last n lines of the log stream.
// Returns ErrNoLogs if the stream has never been created.
func (s *Store) TailLog(n int) ([]string, error) {
	data, err := os.ReadFile(s.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLogs
		}
		return nil, fmt.Errorf("failed to read log stream: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// writeJSON writes v to path via a temp file and rename, so a concurrent
// reader sees either the old or the new complete content.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

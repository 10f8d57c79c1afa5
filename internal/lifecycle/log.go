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

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event records a daemon lifecycle transition for audit purposes.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"` // "start", "stop", "stale_pid_detected", ...
	PID       int       `json:"pid,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLogger appends daemon lifecycle events to a JSON-lines file.
type EventLogger struct {
	logPath string
}

// NewEventLogger creates a new lifecycle event logger.
func NewEventLogger(logPath string) *EventLogger {
	return &EventLogger{
		logPath: logPath,
	}
}

// LogStart logs that a daemon start was initiated.
func (l *EventLogger) LogStart() error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "start",
		Success:   true,
		Message:   "daemon start initiated",
	})
}

// LogStartSuccess logs a successful daemon spawn with its PID.
func (l *EventLogger) LogStartSuccess(pid int) error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "start_success",
		PID:       pid,
		Success:   true,
		Message:   "daemon spawned",
	})
}

// LogStartFailure logs a failed daemon start.
func (l *EventLogger) LogStartFailure(err error) error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "start_failure",
		Success:   false,
		Message:   "daemon failed to start",
		Error:     err.Error(),
	})
}

// LogStop logs a daemon stop.
func (l *EventLogger) LogStop(pid int) error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "stop",
		PID:       pid,
		Success:   true,
		Message:   "daemon stop initiated",
	})
}

// LogStopSuccess logs a completed daemon shutdown.
func (l *EventLogger) LogStopSuccess(pid int, duration time.Duration) error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "stop_success",
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("daemon stopped (duration: %v)", duration),
	})
}

// LogStalePID logs detection and removal of a stale PID file.
func (l *EventLogger) LogStalePID(pid int, reason string) error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "stale_pid_detected",
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("stale PID file detected and removed: %s", reason),
	})
}

// LogAlreadyRunning logs a start attempt against a live daemon.
func (l *EventLogger) LogAlreadyRunning(pid int) error {
	return l.writeEvent(Event{
		Timestamp: time.Now(),
		Event:     "already_running",
		PID:       pid,
		Success:   true,
		Message:   "daemon already running",
	})
}

// writeEvent appends a lifecycle event to the log file.
func (l *EventLogger) writeEvent(event Event) error {
	logDir := filepath.Dir(l.logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

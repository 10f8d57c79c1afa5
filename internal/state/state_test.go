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

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := newStore(t)

	if _, err := s.ReadSnapshot(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("ReadSnapshot() error = %v, want ErrNoSnapshot", err)
	}

	snap := &Snapshot{
		Phase:     PhaseMonitoring,
		Timestamp: time.Now().UTC(),
		PID:       4242,
		RunID:     "run-1",
		From:      "Departure Bay",
		To:        "Horseshoe Bay",
		Date:      "10/15/2025",
		Time:      "1:20 pm",
		Cycle:     1,
	}
	if err := s.WriteSnapshot(snap); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}

	got, err := s.ReadSnapshot()
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if got.Phase != PhaseMonitoring || got.PID != 4242 || got.From != "Departure Bay" {
		t.Errorf("ReadSnapshot() = %+v", got)
	}

	// Overwrite reflects the newest phase.
	snap.Phase = PhaseBooking
	if err := s.WriteSnapshot(snap); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	got, err = s.ReadSnapshot()
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if got.Phase != PhaseBooking {
		t.Errorf("Phase = %q, want %q", got.Phase, PhaseBooking)
	}
}

func TestResult_ConfirmationNumberIsExplicitNull(t *testing.T) {
	s := newStore(t)

	res := &Result{
		RunID:     "run-1",
		Success:   true,
		Timestamp: time.Now().UTC(),
		Phase:     PhaseCompleted,
	}
	if err := s.WriteResult(res); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}

	data, err := os.ReadFile(s.resultPath())
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	v, ok := raw["confirmationNumber"]
	if !ok {
		t.Fatal("confirmationNumber field absent, want explicit null")
	}
	if string(v) != "null" {
		t.Errorf("confirmationNumber = %s, want null", v)
	}
}

func TestResult_LastRunWins(t *testing.T) {
	s := newStore(t)

	first := &Result{RunID: "run-1", Success: false, Phase: PhaseFailed}
	if err := s.WriteResult(first); err != nil {
		t.Fatal(err)
	}

	conf := "BC12345"
	second := &Result{RunID: "run-2", Success: true, Phase: PhaseCompleted, ConfirmationNumber: &conf}
	if err := s.WriteResult(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadResult()
	if err != nil {
		t.Fatalf("ReadResult() error = %v", err)
	}
	if got.RunID != "run-2" || !got.Success {
		t.Errorf("ReadResult() = %+v, want run-2", got)
	}
	if got.ConfirmationNumber == nil || *got.ConfirmationNumber != "BC12345" {
		t.Errorf("ConfirmationNumber = %v, want BC12345", got.ConfirmationNumber)
	}
}

func TestResult_BookingFailureKeepsAvailability(t *testing.T) {
	s := newStore(t)

	res := &Result{
		RunID:        "run-1",
		Success:      false,
		Phase:        PhaseFailed,
		Availability: &Availability{Available: true, Checks: 7, Elapsed: 420},
		Booking:      &Booking{Success: false, FailedStep: "payment", Error: "card declined"},
	}
	if err := s.WriteResult(res); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadResult()
	if err != nil {
		t.Fatal(err)
	}
	if got.Availability == nil || !got.Availability.Available {
		t.Error("availability fact lost from failed-booking result")
	}
	if got.Booking == nil || got.Booking.FailedStep != "payment" {
		t.Errorf("Booking = %+v", got.Booking)
	}
}

func TestTailLog(t *testing.T) {
	s := newStore(t)

	t.Run("missing stream yields ErrNoLogs", func(t *testing.T) {
		if _, err := s.TailLog(10); !errors.Is(err, ErrNoLogs) {
			t.Errorf("TailLog() error = %v, want ErrNoLogs", err)
		}
	})

	t.Run("returns last n lines in order", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			if err := s.AppendLog(fmt.Sprintf("line %d", i)); err != nil {
				t.Fatal(err)
			}
		}

		lines, err := s.TailLog(2)
		if err != nil {
			t.Fatalf("TailLog() error = %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("TailLog() returned %d lines, want 2", len(lines))
		}
		if !strings.HasSuffix(lines[0], "line 4") || !strings.HasSuffix(lines[1], "line 5") {
			t.Errorf("TailLog() = %v", lines)
		}
	})

	t.Run("n larger than stream returns everything", func(t *testing.T) {
		lines, err := s.TailLog(100)
		if err != nil {
			t.Fatalf("TailLog() error = %v", err)
		}
		if len(lines) != 5 {
			t.Errorf("TailLog() returned %d lines, want 5", len(lines))
		}
	})

	t.Run("lines carry timestamps", func(t *testing.T) {
		lines, err := s.TailLog(1)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(lines[0], "[") {
			t.Errorf("log line %q has no timestamp prefix", lines[0])
		}
	})
}

func TestFollowLog(t *testing.T) {
	s := newStore(t)

	if err := s.AppendLog("before follow"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var buf strings.Builder
	done := make(chan error, 1)
	go func() {
		done <- s.FollowLog(ctx, syncWriter{mu: &mu, b: &buf})
	}()

	// Give the watcher time to attach before appending.
	time.Sleep(200 * time.Millisecond)
	if err := s.AppendLog("after follow"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		content := buf.String()
		mu.Unlock()
		if strings.Contains(content, "after follow") {
			cancel()
			if err := <-done; err != nil {
				t.Errorf("FollowLog() error = %v", err)
			}
			mu.Lock()
			defer mu.Unlock()
			if strings.Contains(buf.String(), "before follow") {
				t.Error("FollowLog() replayed lines from before the follow started")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("FollowLog() never delivered the appended line")
}

type syncWriter struct {
	mu *sync.Mutex
	b  *strings.Builder
}

func (w syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

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
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestIsProcessRunning(t *testing.T) {
	t.Run("current process is running", func(t *testing.T) {
		if !IsProcessRunning(os.Getpid()) {
			t.Error("IsProcessRunning(self) = false, want true")
		}
	})

	t.Run("exited process is not running", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		pid := cmd.Process.Pid
		if err := cmd.Wait(); err != nil {
			t.Fatalf("wait failed: %v", err)
		}

		if IsProcessRunning(pid) {
			t.Errorf("IsProcessRunning(%d) = true for reaped process", pid)
		}
	})

	t.Run("nonexistent PID is not running", func(t *testing.T) {
		// PIDs near the default pid_max are very unlikely to be live.
		if IsProcessRunning(4194000) {
			t.Skip("improbable PID is actually in use")
		}
	})
}

func TestWaitForExit(t *testing.T) {
	t.Run("returns promptly for dead process", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		pid := cmd.Process.Pid
		cmd.Wait()

		if err := WaitForExit(pid, 2*time.Second); err != nil {
			t.Errorf("WaitForExit() error = %v", err)
		}
	})

	t.Run("times out for live process", func(t *testing.T) {
		cmd := exec.Command("sleep", "30")
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		defer func() {
			cmd.Process.Kill()
			cmd.Wait()
		}()

		err := WaitForExit(cmd.Process.Pid, 300*time.Millisecond)
		if err != ErrShutdownTimeout {
			t.Errorf("WaitForExit() error = %v, want ErrShutdownTimeout", err)
		}
	})
}

func TestGracefulShutdown(t *testing.T) {
	t.Run("terminates a live process", func(t *testing.T) {
		cmd := exec.Command("sleep", "30")
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		pid := cmd.Process.Pid
		go cmd.Wait() // reap so the PID does not linger as a zombie

		if err := GracefulShutdown(pid, 5*time.Second, false); err != nil {
			t.Errorf("GracefulShutdown() error = %v", err)
		}
	})

	t.Run("returns ErrProcessNotRunning for dead process", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		pid := cmd.Process.Pid
		cmd.Wait()

		if err := GracefulShutdown(pid, time.Second, false); err != ErrProcessNotRunning {
			t.Errorf("GracefulShutdown() error = %v, want ErrProcessNotRunning", err)
		}
	})
}

func TestSpawnDetached(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := tmpDir + "/spawn.log"

	spawner := NewSpawner()
	pid, err := spawner.SpawnDetached("/bin/sh", []string{"-c", "echo spawned"}, logPath)
	if err != nil {
		t.Fatalf("SpawnDetached() error = %v", err)
	}
	if pid <= 0 {
		t.Fatalf("SpawnDetached() pid = %d", pid)
	}

	// The child is not our responsibility to reap; wait for its output to
	// land in the redirected log instead.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(logPath)
		if err == nil && len(data) > 0 {
			if string(data) != "spawned\n" {
				t.Errorf("log content = %q, want %q", data, "spawned\n")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("spawned process output never reached the log file")
}

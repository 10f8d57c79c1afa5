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

package controller

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrymon/ferrymon/internal/config"
	"github.com/ferrymon/ferrymon/internal/state"
)

// fakeSpawner launches a real throwaway process so PID liveness checks see
// something alive, and records what it was asked to spawn.
type fakeSpawner struct {
	t       *testing.T
	binary  string
	args    []string
	logPath string
	err     error
	calls   int
	procs   []*exec.Cmd
}

func (f *fakeSpawner) SpawnDetached(binary string, args []string, logPath string) (int, error) {
	f.calls++
	f.binary = binary
	f.args = args
	f.logPath = logPath
	if f.err != nil {
		return 0, f.err
	}
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	f.procs = append(f.procs, cmd)
	f.t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})
	return cmd.Process.Pid, nil
}

func okResolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}
	return "resolved", nil
}

func newTestController(t *testing.T) (*Controller, *state.Store, *fakeSpawner) {
	return newTestControllerWith(t, nil)
}

// newTestControllerWith lets a test decide which PIDs count as workers.
// The fake spawner launches plain sleep processes, so the default cmdline
// check would never recognize them.
func newTestControllerWith(t *testing.T, identify func(pid int) bool) (*Controller, *state.Store, *fakeSpawner) {
	t.Helper()
	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)
	spawner := &fakeSpawner{t: t}
	c := New(Options{
		Store:        store,
		Spawner:      spawner,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		DaemonBinary: "/usr/local/bin/ferrymond",
		Resolve:      okResolve,
		Identify:     identify,
	})
	return c, store, spawner
}

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.Monitor.From = "tsawwassen"
	cfg.Monitor.To = "swartz_bay"
	cfg.Monitor.Date = "09/01/2026"
	cfg.Monitor.Time = "1:20 pm"
	return cfg
}

func bookingConfig() *config.Config {
	cfg := validConfig()
	cfg.AutoBook = true
	cfg.Booking.Credentials = config.CredentialRefs{Email: "keyring:e", Password: "keyring:p"}
	cfg.Booking.Payment = config.PaymentRefs{
		Name: "keyring:n", Number: "keyring:num", Expiry: "keyring:x",
		CVV: "keyring:c", Address: "keyring:a", City: "keyring:ci",
		Province: "keyring:pr", Postal: "keyring:po", Country: "keyring:co",
	}
	return cfg
}

func TestStart_NoConfig(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Start(nil, StartOptions{})
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestStart_InvalidConfig(t *testing.T) {
	c, _, _ := newTestController(t)
	cfg := validConfig()
	cfg.Monitor.From = ""
	_, err := c.Start(cfg, StartOptions{})
	require.Error(t, err)
}

func TestStart_SpawnsAndRecordsHandle(t *testing.T) {
	c, store, spawner := newTestController(t)

	pid, err := c.Start(validConfig(), StartOptions{ConfigPath: "/tmp/config.yaml"})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.Equal(t, "/usr/local/bin/ferrymond", spawner.binary)
	assert.Equal(t, []string{"--config", "/tmp/config.yaml"}, spawner.args)
	assert.Equal(t, store.LogPath(), spawner.logPath)

	_, err = os.Stat(store.PIDPath())
	assert.NoError(t, err, "start must record the daemon handle")
}

func TestStart_SpawnFailureLogsAndFails(t *testing.T) {
	c, store, spawner := newTestController(t)
	spawner.err = fmt.Errorf("exec format error")

	_, err := c.Start(validConfig(), StartOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to spawn")

	_, statErr := os.Stat(store.PIDPath())
	assert.True(t, os.IsNotExist(statErr), "no handle may exist after a failed start")

	events, readErr := os.ReadFile(store.EventLogPath())
	require.NoError(t, readErr)
	assert.Contains(t, string(events), "start_failure")
}

func TestStart_ClearsStaleHandle(t *testing.T) {
	c, store, _ := newTestController(t)

	// A handle pointing at a process that has already exited.
	dead := exec.Command("true")
	require.NoError(t, dead.Run())
	require.NoError(t, os.WriteFile(store.PIDPath(),
		[]byte(fmt.Sprintf("%d\n%s\n", dead.Process.Pid, time.Now().Format(time.RFC3339))), 0600))

	pid, err := c.Start(validConfig(), StartOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, dead.Process.Pid, pid)

	events, readErr := os.ReadFile(store.EventLogPath())
	require.NoError(t, readErr)
	assert.Contains(t, string(events), "stale_pid_detected")
}

func TestStart_SecondStartReportsAlreadyRunning(t *testing.T) {
	c, _, spawner := newTestControllerWith(t, func(int) bool { return true })

	pid, err := c.Start(validConfig(), StartOptions{})
	require.NoError(t, err)

	again, err := c.Start(validConfig(), StartOptions{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, pid, again)
	assert.Equal(t, 1, spawner.calls, "a running daemon must not be spawned twice")
}

func TestStart_OptionalCountryRefMayBeEmpty(t *testing.T) {
	c, _, _ := newTestController(t)
	cfg := bookingConfig()
	cfg.Booking.Payment.Country = ""

	_, err := c.Start(cfg, StartOptions{})
	require.NoError(t, err)
}

func TestStart_IncompleteBookingSecrets(t *testing.T) {
	c, _, _ := newTestController(t)
	cfg := bookingConfig()
	cfg.Booking.Payment.CVV = "" // unresolvable

	_, err := c.Start(cfg, StartOptions{})
	require.Error(t, err)
	// Validation catches the empty ref before secret checking does; either
	// way start must refuse.
}

func TestStart_LiveBookingRequiresToken(t *testing.T) {
	c, _, _ := newTestController(t)
	cfg := bookingConfig()
	cfg.Booking.DryRun = false

	t.Run("no token", func(t *testing.T) {
		_, err := c.Start(cfg, StartOptions{})
		assert.ErrorIs(t, err, ErrLiveConfirmRequired)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := c.MintLiveToken()
		require.NoError(t, err)
		_, err = c.Start(cfg, StartOptions{ConfirmToken: "not-the-token"})
		assert.ErrorIs(t, err, ErrBadConfirmToken)
	})
}

func TestStart_LiveBookingTokenConsumedOnUse(t *testing.T) {
	c, store, _ := newTestController(t)
	cfg := bookingConfig()
	cfg.Booking.DryRun = false

	token, err := c.MintLiveToken()
	require.NoError(t, err)

	_, err = c.Start(cfg, StartOptions{ConfirmToken: token})
	require.NoError(t, err)

	_, statErr := os.Stat(store.TokenPath())
	assert.True(t, os.IsNotExist(statErr), "token must be single-use")
}

func TestStart_DryRunNeedsNoToken(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Start(bookingConfig(), StartOptions{})
	require.NoError(t, err)
}

func TestStop_NotRunning(t *testing.T) {
	c, _, _ := newTestController(t)
	assert.ErrorIs(t, c.Stop(time.Second, false), ErrNotRunning)
}

func TestStop_DeadHandleReportsNotRunning(t *testing.T) {
	c, store, _ := newTestController(t)

	dead := exec.Command("true")
	require.NoError(t, dead.Run())
	require.NoError(t, os.WriteFile(store.PIDPath(),
		[]byte(fmt.Sprintf("%d\n", dead.Process.Pid)), 0600))

	assert.ErrorIs(t, c.Stop(time.Second, false), ErrNotRunning)

	_, statErr := os.Stat(store.PIDPath())
	assert.True(t, os.IsNotExist(statErr), "dead handle must be cleared")
}

func TestStop_TerminatesProcess(t *testing.T) {
	c, store, _ := newTestControllerWith(t, func(int) bool { return true })

	proc := exec.Command("sleep", "30")
	require.NoError(t, proc.Start())
	t.Cleanup(func() { proc.Process.Kill() })
	// Reap the child as soon as it dies; an unreaped zombie still answers
	// signal 0 and shutdown would wait out the full grace period.
	go proc.Wait()
	require.NoError(t, os.WriteFile(store.PIDPath(),
		[]byte(fmt.Sprintf("%d\n%s\n", proc.Process.Pid, time.Now().Format(time.RFC3339))), 0600))

	require.NoError(t, c.Stop(5*time.Second, false))

	_, statErr := os.Stat(store.PIDPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestStop_RecycledPIDTreatedAsStale(t *testing.T) {
	c, store, _ := newTestController(t)

	// A live process that is not ours, as if the daemon died and the
	// kernel handed its PID to somebody else.
	bystander := exec.Command("sleep", "30")
	require.NoError(t, bystander.Start())
	t.Cleanup(func() {
		bystander.Process.Kill()
		bystander.Wait()
	})
	require.NoError(t, os.WriteFile(store.PIDPath(),
		[]byte(fmt.Sprintf("%d\n%s\n", bystander.Process.Pid, time.Now().Format(time.RFC3339))), 0600))

	assert.ErrorIs(t, c.Stop(time.Second, false), ErrNotRunning)
	assert.NoError(t, bystander.Process.Signal(syscall.Signal(0)),
		"an unrelated process must never be signalled")

	_, statErr := os.Stat(store.PIDPath())
	assert.True(t, os.IsNotExist(statErr), "recycled handle must be cleared")

	events, readErr := os.ReadFile(store.EventLogPath())
	require.NoError(t, readErr)
	assert.Contains(t, string(events), "stale_pid_detected")
}

func TestStatus_NeverStarted(t *testing.T) {
	c, _, _ := newTestController(t)
	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, StateNeverStarted, st.State)
	assert.Nil(t, st.Snapshot)
	assert.Nil(t, st.Result)
}

func TestStatus_StaleHandleReportedAndCleared(t *testing.T) {
	c, store, _ := newTestController(t)

	dead := exec.Command("true")
	require.NoError(t, dead.Run())
	require.NoError(t, os.WriteFile(store.PIDPath(),
		[]byte(fmt.Sprintf("%d\n", dead.Process.Pid)), 0600))

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, StateStale, st.State)
	assert.Equal(t, dead.Process.Pid, st.PID)

	_, statErr := os.Stat(store.PIDPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestStatus_StoppedWithResult(t *testing.T) {
	c, store, _ := newTestController(t)

	require.NoError(t, store.WriteResult(&state.Result{
		RunID:   "run-1",
		Success: true,
		Phase:   state.PhaseCompleted,
	}))

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	require.NotNil(t, st.Result)
	assert.True(t, st.Result.Success)
}

func TestLogs_Delegation(t *testing.T) {
	c, store, _ := newTestController(t)

	_, err := c.Logs(0)
	assert.ErrorIs(t, err, state.ErrNoLogs)

	require.NoError(t, store.AppendLog("first"))
	require.NoError(t, store.AppendLog("second"))

	lines, err := c.Logs(1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "second")
}

func TestRestart_WhenNotRunningJustStarts(t *testing.T) {
	c, _, _ := newTestController(t)
	pid, err := c.Restart(validConfig(), StartOptions{})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
}

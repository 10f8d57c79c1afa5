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

// Package controller manages the detached daemon: start, stop, status,
// restart, and log access. It owns the PID handle and the lifecycle audit
// log; the spawned worker owns everything the run itself produces.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ferrymon/ferrymon/internal/config"
	"github.com/ferrymon/ferrymon/internal/lifecycle"
	"github.com/ferrymon/ferrymon/internal/log"
	"github.com/ferrymon/ferrymon/internal/state"
)

var (
	// ErrAlreadyRunning is returned by Start when a live daemon holds the
	// PID handle.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned by Stop when no live daemon exists.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrMissingConfig is returned by Start when no configuration has been
	// saved yet.
	ErrMissingConfig = errors.New("not configured (run 'ferrymon configure' first)")

	// ErrIncompleteBookingConfig is returned by Start when auto-book is
	// enabled but a secret reference cannot be resolved.
	ErrIncompleteBookingConfig = errors.New("booking configuration incomplete")

	// ErrLiveConfirmRequired is returned by Start when dry-run is disabled
	// and no confirmation token was supplied.
	ErrLiveConfirmRequired = errors.New("live booking requires --confirm-live with the token from 'ferrymon configure'")

	// ErrBadConfirmToken is returned when the supplied token does not match
	// the minted one.
	ErrBadConfirmToken = errors.New("live booking confirmation token does not match")
)

// DefaultStopTimeout bounds how long Stop waits for a graceful exit.
const DefaultStopTimeout = 10 * time.Second

// RunState classifies the daemon's process state. A stale handle (left by
// a crashed or killed daemon) is reported explicitly rather than silently
// folded into "not running".
type RunState string

const (
	StateNeverStarted RunState = "never_started"
	StateRunning      RunState = "running"
	StateStale        RunState = "stale_cleared"
	StateStopped      RunState = "stopped"
)

// Status is everything an external observer can know about the daemon.
type Status struct {
	State     RunState
	PID       int
	StartedAt time.Time

	// Snapshot is the last workflow snapshot, nil if none exists.
	Snapshot *state.Snapshot
	// Result is the last terminal result, nil if no run has finished.
	Result *state.Result
}

// Running reports whether a live daemon exists.
func (s *Status) Running() bool { return s.State == StateRunning }

// Spawner launches a detached worker process.
type Spawner interface {
	SpawnDetached(binary string, args []string, logPath string) (int, error)
}

// Controller coordinates daemon lifecycle operations against one state
// directory.
type Controller struct {
	store   *state.Store
	pidfile *lifecycle.PIDFileManager
	events  *lifecycle.EventLogger
	spawner Spawner
	logger  *slog.Logger

	// daemonBinary is the worker executable to spawn for Start.
	daemonBinary string

	// resolve checks secret references before start. Injectable for tests.
	resolve func(ref string) (string, error)

	// identify reports whether a PID belongs to a ferrymon worker.
	// Injectable for tests.
	identify func(pid int) bool
}

// Options configures a Controller.
type Options struct {
	Store        *state.Store
	Spawner      Spawner
	Logger       *slog.Logger
	DaemonBinary string
	Resolve      func(ref string) (string, error)

	// Identify overrides the worker identity check. Defaults to
	// lifecycle.IsFerrymonProcess.
	Identify func(pid int) bool
}

// New creates a Controller rooted at the given store.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = lifecycle.NewSpawner()
	}
	identify := opts.Identify
	if identify == nil {
		identify = lifecycle.IsFerrymonProcess
	}
	return &Controller{
		store:        opts.Store,
		pidfile:      lifecycle.NewPIDFileManager(opts.Store.PIDPath()),
		events:       lifecycle.NewEventLogger(opts.Store.EventLogPath()),
		spawner:      spawner,
		logger:       log.WithComponent(logger, "controller"),
		daemonBinary: opts.DaemonBinary,
		resolve:      opts.Resolve,
		identify:     identify,
	}
}

// StartOptions carries per-invocation start parameters.
type StartOptions struct {
	// ConfigPath is passed to the worker; empty means the default location.
	ConfigPath string

	// ConfirmToken authorizes a live (non-dry-run) booking start.
	ConfirmToken string
}

// Start validates the configuration, clears any stale handle, and spawns
// the detached worker. It returns the worker PID without waiting for the
// run to progress.
func (c *Controller) Start(cfg *config.Config, opts StartOptions) (int, error) {
	if cfg == nil {
		return 0, ErrMissingConfig
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	if handle, err := c.pidfile.Read(); err == nil {
		if lifecycle.IsProcessRunning(handle.PID) && c.identify(handle.PID) {
			c.events.LogAlreadyRunning(handle.PID)
			return handle.PID, ErrAlreadyRunning
		}
		// Handle left behind by a dead daemon. Clear it and carry on.
		c.events.LogStalePID(handle.PID, "process not running")
		c.logger.Warn("clearing stale daemon handle", "pid", handle.PID)
		if err := c.pidfile.Remove(); err != nil {
			return 0, fmt.Errorf("failed to clear stale handle: %w", err)
		}
	}

	if cfg.AutoBook {
		if err := c.checkSecrets(cfg); err != nil {
			return 0, err
		}
		if !cfg.Booking.DryRun {
			if err := c.checkLiveToken(opts.ConfirmToken); err != nil {
				return 0, err
			}
		}
	}

	c.events.LogStart()

	args := []string{}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	pid, err := c.spawner.SpawnDetached(c.daemonBinary, args, c.store.LogPath())
	if err != nil {
		c.events.LogStartFailure(err)
		return 0, fmt.Errorf("failed to spawn daemon: %w", err)
	}

	if err := c.pidfile.Create(pid); err != nil {
		c.events.LogStartFailure(err)
		// The worker is up but untracked; take it back down.
		lifecycle.GracefulShutdown(pid, 5*time.Second, true)
		return 0, fmt.Errorf("failed to record daemon handle: %w", err)
	}

	c.events.LogStartSuccess(pid)
	c.logger.Info("daemon started", "pid", pid)
	return pid, nil
}

// checkSecrets verifies every booking secret reference resolves. Resolved
// values are discarded immediately; only the worker uses them.
func (c *Controller) checkSecrets(cfg *config.Config) error {
	if c.resolve == nil {
		return nil
	}
	refs := map[string]string{
		"credentials.email":    cfg.Booking.Credentials.Email,
		"credentials.password": cfg.Booking.Credentials.Password,
		"payment.name":         cfg.Booking.Payment.Name,
		"payment.number":       cfg.Booking.Payment.Number,
		"payment.expiry":       cfg.Booking.Payment.Expiry,
		"payment.cvv":          cfg.Booking.Payment.CVV,
		"payment.address":      cfg.Booking.Payment.Address,
		"payment.city":         cfg.Booking.Payment.City,
		"payment.province":     cfg.Booking.Payment.Province,
		"payment.postal":       cfg.Booking.Payment.Postal,
		"payment.country":      cfg.Booking.Payment.Country,
	}
	for key, ref := range refs {
		if ref == "" {
			// Optional fields may be left unset; validation decides
			// which references are required.
			continue
		}
		if _, err := c.resolve(ref); err != nil {
			return fmt.Errorf("%w: %s (%v)", ErrIncompleteBookingConfig, key, err)
		}
	}
	return nil
}

// checkLiveToken compares the supplied token with the minted one and
// consumes it on match. Each live start needs a fresh token.
func (c *Controller) checkLiveToken(supplied string) error {
	if supplied == "" {
		return ErrLiveConfirmRequired
	}
	data, err := os.ReadFile(c.store.TokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrLiveConfirmRequired
		}
		return fmt.Errorf("failed to read confirmation token: %w", err)
	}
	if strings.TrimSpace(string(data)) != supplied {
		return ErrBadConfirmToken
	}
	return os.Remove(c.store.TokenPath())
}

// MintLiveToken generates and stores a fresh live-booking confirmation
// token, replacing any previous one.
func (c *Controller) MintLiveToken() (string, error) {
	token := uuid.NewString()
	if err := os.WriteFile(c.store.TokenPath(), []byte(token+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to store confirmation token: %w", err)
	}
	return token, nil
}

// Stop shuts the daemon down gracefully, escalating to SIGKILL when force
// is set and the grace period expires.
func (c *Controller) Stop(timeout time.Duration, force bool) error {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	handle, err := c.pidfile.Read()
	if err != nil {
		return ErrNotRunning
	}
	if !lifecycle.IsProcessRunning(handle.PID) || !c.identify(handle.PID) {
		c.events.LogStalePID(handle.PID, "stop requested for dead or recycled pid")
		c.pidfile.Remove()
		return ErrNotRunning
	}

	c.events.LogStop(handle.PID)
	start := time.Now()
	if err := lifecycle.GracefulShutdown(handle.PID, timeout, force); err != nil {
		return fmt.Errorf("failed to stop daemon (pid %d): %w", handle.PID, err)
	}
	if err := c.pidfile.Remove(); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove daemon handle", log.Error(err))
	}
	c.events.LogStopSuccess(handle.PID, time.Since(start))
	c.logger.Info("daemon stopped", "pid", handle.PID)
	return nil
}

// Status reports the daemon's process state plus the latest snapshot and
// result. A stale handle found here is cleared and reported as such.
func (c *Controller) Status() (*Status, error) {
	st := &Status{State: StateNeverStarted}

	if handle, err := c.pidfile.Read(); err == nil {
		if lifecycle.IsProcessRunning(handle.PID) && c.identify(handle.PID) {
			st.State = StateRunning
			st.PID = handle.PID
			st.StartedAt = handle.StartedAt
		} else {
			c.events.LogStalePID(handle.PID, "detected during status")
			c.pidfile.Remove()
			st.State = StateStale
			st.PID = handle.PID
		}
	}

	if snap, err := c.store.ReadSnapshot(); err == nil {
		st.Snapshot = snap
		if st.State == StateNeverStarted {
			st.State = StateStopped
		}
	}
	if res, err := c.store.ReadResult(); err == nil {
		st.Result = res
		if st.State == StateNeverStarted {
			st.State = StateStopped
		}
	}

	return st, nil
}

// Restart stops the daemon if it is running and starts it again, with a
// brief pause so the old worker's handle and snapshot writes settle.
func (c *Controller) Restart(cfg *config.Config, opts StartOptions) (int, error) {
	if err := c.Stop(DefaultStopTimeout, false); err != nil {
		if !errors.Is(err, ErrNotRunning) {
			return 0, err
		}
	} else {
		time.Sleep(200 * time.Millisecond)
	}
	return c.Start(cfg, opts)
}

// Logs returns the last n daemon log lines (all lines when n is 0).
func (c *Controller) Logs(n int) ([]string, error) {
	return c.store.TailLog(n)
}

// FollowLogs streams log lines to w until ctx is cancelled.
func (c *Controller) FollowLogs(ctx context.Context, w io.Writer) error {
	return c.store.FollowLog(ctx, w)
}

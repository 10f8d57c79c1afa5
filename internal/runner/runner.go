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

// Package runner drives one workflow run: monitor availability, optionally
// book, record the outcome. It is the only writer of the status snapshot
// and the result record while a run is live.
//
// The snapshot is rewritten before every blocking call, so an external
// status reader always sees the phase the daemon is actually in, not the
// phase it last finished.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ferrymon/ferrymon/internal/booking"
	"github.com/ferrymon/ferrymon/internal/config"
	"github.com/ferrymon/ferrymon/internal/log"
	"github.com/ferrymon/ferrymon/internal/probe"
	"github.com/ferrymon/ferrymon/internal/state"
)

// DefaultCooldown is the pause between monitoring cycles in continuous
// mode, separate from the prober's own poll interval.
const DefaultCooldown = 30 * time.Second

// Archiver records terminal results for later querying. Archiving is
// best-effort: a failed archive write never fails the run.
type Archiver interface {
	Record(ctx context.Context, res *state.Result) error
}

// Options configures a Runner. Config, Prober, and Store are required.
// Executor and Resolve are required when auto-book is enabled.
type Options struct {
	Config   *config.Config
	Prober   probe.Prober
	Executor booking.Executor
	Store    *state.Store
	Archive  Archiver

	// Resolve maps a secret reference from the configuration to its
	// cleartext value. Secrets are resolved at booking time, not at
	// startup, so they are held in memory for the shortest window.
	Resolve func(ref string) (string, error)

	Logger *slog.Logger

	// Cooldown between continuous-mode cycles. Zero means DefaultCooldown.
	Cooldown time.Duration

	// PID recorded into snapshots; zero means the current process.
	PID int

	// ConfigPath is echoed into snapshots for state reconstruction.
	ConfigPath string
}

// Runner executes the monitoring-then-booking workflow.
type Runner struct {
	cfg      *config.Config
	prober   probe.Prober
	executor booking.Executor
	store    *state.Store
	archive  Archiver
	resolve  func(ref string) (string, error)
	logger   *slog.Logger
	cooldown time.Duration
	pid      int
	cfgPath  string
}

// New creates a Runner from opts.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	return &Runner{
		cfg:      opts.Config,
		prober:   opts.Prober,
		executor: opts.Executor,
		store:    opts.Store,
		archive:  opts.Archive,
		resolve:  opts.Resolve,
		logger:   logger,
		cooldown: cooldown,
		pid:      pid,
		cfgPath:  opts.ConfigPath,
	}
}

// Run executes the workflow until a terminal state or context cancellation.
// The returned Result matches what was persisted; on cancellation before a
// terminal state, no result is written and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context) (*state.Result, error) {
	runID := uuid.NewString()
	mon := r.cfg.Monitor
	logger := log.WithRunContext(r.logger, runID, mon.Route())

	if err := r.store.ClearSnapshot(); err != nil {
		return nil, err
	}

	logger.Info("run starting",
		"date", mon.Date,
		"time", mon.Time,
		"auto_book", r.cfg.AutoBook,
		"continuous", mon.Continuous)

	cycle := 1
	for {
		if err := r.writeSnapshot(runID, state.PhaseMonitoring, cycle); err != nil {
			return nil, err
		}
		r.logf("monitoring %s on %s at %q (cycle %d)", mon.Route(), mon.Date, mon.Time, cycle)

		res, outcome, err := r.prober.Probe(ctx, r.probeRequest())
		if ctx.Err() != nil {
			r.logf("stopped while monitoring")
			logger.Info("run cancelled", log.PhaseKey, state.PhaseMonitoring)
			return nil, ctx.Err()
		}

		switch outcome {
		case probe.OutcomeAvailable:
			return r.onAvailable(ctx, runID, cycle, logger, res)

		case probe.OutcomeTimedOut:
			if mon.Continuous {
				r.logf("no availability within %s, cooling down %s before cycle %d",
					mon.Timeout, r.cooldown, cycle+1)
				logger.Info("cycle timed out, continuing", log.ChecksKey, probeChecks(res), "cycle", cycle)
				if err := sleepCtx(ctx, r.cooldown); err != nil {
					r.logf("stopped during cooldown")
					return nil, err
				}
				cycle++
				continue
			}
			return r.finishTimeout(ctx, runID, cycle, logger, res)

		default:
			// The prober itself failed, which says nothing about the
			// sailing. In continuous mode retry after the cooldown; in
			// single-shot mode the run cannot produce an answer.
			r.logf("prober failed: %v", err)
			logger.Error("prober invocation failed", log.Error(err), "cycle", cycle)
			if mon.Continuous {
				if serr := sleepCtx(ctx, r.cooldown); serr != nil {
					return nil, serr
				}
				cycle++
				continue
			}
			return r.finishError(ctx, runID, cycle, logger,
				fmt.Errorf("prober failed: %w", err))
		}
	}
}

// onAvailable handles the transition out of monitoring once a sailing has
// space. Whatever happens next, the availability fact is already won and
// is preserved in the result.
func (r *Runner) onAvailable(ctx context.Context, runID string, cycle int, logger *slog.Logger, res *probe.Result) (*state.Result, error) {
	avail := toAvailability(res)
	r.logf("availability found after %d checks (%.0fs elapsed)", avail.Checks, avail.Elapsed)
	if avail.Price != "" {
		r.logf("price: %s", avail.Price)
	}
	logger.Info("availability found",
		log.ChecksKey, avail.Checks,
		"elapsed_seconds", avail.Elapsed,
		"price", avail.Price)

	if !r.cfg.AutoBook {
		result := &state.Result{
			RunID:        runID,
			Success:      true,
			Timestamp:    time.Now().UTC(),
			Phase:        state.PhaseCompleted,
			Availability: avail,
		}
		r.logf("monitoring goal reached, auto-book disabled")
		return result, r.finish(ctx, result, cycle, logger)
	}

	if err := r.writeSnapshot(runID, state.PhaseBooking, cycle); err != nil {
		return nil, err
	}

	// Record the availability fact before attempting checkout, so a crash
	// mid-booking still leaves it on disk. The terminal result replaces
	// this record.
	if err := r.store.WriteResult(&state.Result{
		RunID:        runID,
		Success:      false,
		Timestamp:    time.Now().UTC(),
		Phase:        state.PhaseBooking,
		Availability: avail,
	}); err != nil {
		return nil, fmt.Errorf("failed to record availability: %w", err)
	}

	req, err := r.bookingRequest()
	if err != nil {
		result := &state.Result{
			RunID:        runID,
			Success:      false,
			Timestamp:    time.Now().UTC(),
			Phase:        state.PhaseFailed,
			Availability: avail,
			Error:        fmt.Sprintf("failed to resolve booking secrets: %v", err),
		}
		r.logf("booking aborted: %v", err)
		logger.Error("secret resolution failed", log.Error(err))
		return result, r.finish(ctx, result, cycle, logger)
	}

	r.logf("starting booking (dry_run=%t)", req.DryRun)
	logger.Info("booking started", "dry_run", req.DryRun)

	bres, err := r.executor.Book(ctx, req)
	if ctx.Err() != nil {
		r.logf("stopped while booking")
		logger.Info("run cancelled", log.PhaseKey, state.PhaseBooking)
		return nil, ctx.Err()
	}
	if err != nil {
		result := &state.Result{
			RunID:        runID,
			Success:      false,
			Timestamp:    time.Now().UTC(),
			Phase:        state.PhaseFailed,
			Availability: avail,
			Error:        fmt.Sprintf("booking executor failed: %v", err),
		}
		r.logf("booking executor failed: %v", err)
		logger.Error("booking executor failed", log.Error(err))
		return result, r.finish(ctx, result, cycle, logger)
	}

	rec := &state.Booking{
		Success:            bres.Success,
		ConfirmationNumber: bres.ConfirmationNumber,
		FailedStep:         bres.FailedStep,
		Error:              bres.Error,
		RaceCondition:      bres.RaceCondition,
		DryRun:             r.cfg.Booking.DryRun,
	}

	if !bres.Success {
		result := &state.Result{
			RunID:        runID,
			Success:      false,
			Timestamp:    time.Now().UTC(),
			Phase:        state.PhaseFailed,
			Availability: avail,
			Booking:      rec,
			Error:        bres.Error,
		}
		r.logf("booking failed at step %q: %s", bres.FailedStep, bres.Error)
		if bres.RaceCondition {
			r.logf("availability was lost between detection and checkout")
		}
		logger.Warn("booking failed",
			"failed_step", bres.FailedStep,
			"booking_error", bres.Error,
			"race_condition", bres.RaceCondition)
		return result, r.finish(ctx, result, cycle, logger)
	}

	confirmation := bres.ConfirmationNumber
	result := &state.Result{
		RunID:              runID,
		Success:            true,
		Timestamp:          time.Now().UTC(),
		Phase:              state.PhaseCompleted,
		ConfirmationNumber: &confirmation,
		Availability:       avail,
		Booking:            rec,
	}
	r.logf("booking confirmed: %s (dry_run=%t)", confirmation, r.cfg.Booking.DryRun)
	logger.Info("booking confirmed", "confirmation", confirmation, "dry_run", r.cfg.Booking.DryRun)
	return result, r.finish(ctx, result, cycle, logger)
}

func (r *Runner) finishTimeout(ctx context.Context, runID string, cycle int, logger *slog.Logger, res *probe.Result) (*state.Result, error) {
	avail := toAvailability(res)
	if avail.Reason == "" {
		avail.Reason = "timeout"
	}
	result := &state.Result{
		RunID:        runID,
		Success:      false,
		Timestamp:    time.Now().UTC(),
		Phase:        state.PhaseFailed,
		Availability: avail,
		Error:        "no availability before deadline",
	}
	r.logf("no availability within %s after %d checks", r.cfg.Monitor.Timeout, avail.Checks)
	logger.Info("run timed out", log.ChecksKey, avail.Checks)
	return result, r.finish(ctx, result, cycle, logger)
}

func (r *Runner) finishError(ctx context.Context, runID string, cycle int, logger *slog.Logger, err error) (*state.Result, error) {
	result := &state.Result{
		RunID:     runID,
		Success:   false,
		Timestamp: time.Now().UTC(),
		Phase:     state.PhaseFailed,
		Error:     err.Error(),
	}
	return result, r.finish(ctx, result, cycle, logger)
}

// finish persists the terminal state: snapshot, result record (exactly
// once), and best-effort archive row.
func (r *Runner) finish(ctx context.Context, result *state.Result, cycle int, logger *slog.Logger) error {
	if err := r.writeSnapshot(result.RunID, result.Phase, cycle); err != nil {
		return err
	}
	if err := r.store.WriteResult(result); err != nil {
		return err
	}
	r.logf("run finished: phase=%s success=%t", result.Phase, result.Success)
	logger.Info("run finished", log.PhaseKey, result.Phase, "success", result.Success)

	if r.archive != nil {
		if err := r.archive.Record(ctx, result); err != nil {
			logger.Warn("failed to archive run", log.Error(err))
		}
	}
	return nil
}

func (r *Runner) writeSnapshot(runID string, phase state.Phase, cycle int) error {
	mon := r.cfg.Monitor
	return r.store.WriteSnapshot(&state.Snapshot{
		Phase:      phase,
		Timestamp:  time.Now().UTC(),
		PID:        r.pid,
		RunID:      runID,
		From:       mon.From,
		To:         mon.To,
		Date:       mon.Date,
		Time:       mon.Time,
		Cycle:      cycle,
		ConfigPath: r.cfgPath,
	})
}

// logf appends to the user-facing log stream. Failures are swallowed: the
// stream is advisory and must never abort a run mid-booking.
func (r *Runner) logf(format string, args ...any) {
	_ = r.store.AppendLog(fmt.Sprintf(format, args...))
}

func (r *Runner) probeRequest() probe.Request {
	mon := r.cfg.Monitor
	return probe.Request{
		From:         mon.From,
		To:           mon.To,
		Date:         mon.Date,
		Time:         mon.Time,
		Adults:       mon.Party.Adults,
		Children:     mon.Party.Children,
		Seniors:      mon.Party.Seniors,
		Infants:      mon.Party.Infants,
		Vehicle:      mon.Vehicle,
		PollInterval: mon.PollInterval,
		Timeout:      mon.Timeout,
	}
}

// bookingRequest resolves secret references and assembles the executor
// request. The booking date falls back to the monitoring date and both are
// normalized to ISO form for the executor.
func (r *Runner) bookingRequest() (booking.Request, error) {
	bk := r.cfg.Booking
	if bk == nil {
		return booking.Request{}, errors.New("auto-book enabled but booking configuration missing")
	}
	if r.executor == nil {
		return booking.Request{}, errors.New("no booking executor configured")
	}
	if r.resolve == nil {
		return booking.Request{}, errors.New("no secret resolver configured")
	}

	date := bk.Date
	if date == "" {
		date = r.cfg.Monitor.Date
	}

	refs := map[string]*string{
		"credentials.email":    nil,
		"credentials.password": nil,
		"payment.name":         nil,
		"payment.number":       nil,
		"payment.expiry":       nil,
		"payment.cvv":          nil,
		"payment.address":      nil,
		"payment.city":         nil,
		"payment.province":     nil,
		"payment.postal":       nil,
		"payment.country":      nil,
	}

	req := booking.Request{
		Departure:     r.cfg.Monitor.From,
		Arrival:       r.cfg.Monitor.To,
		Date:          booking.ToISODate(date),
		SailingTime:   r.cfg.Monitor.Time,
		Adults:        r.cfg.Monitor.Party.Adults,
		Children:      r.cfg.Monitor.Party.Children,
		Seniors:       r.cfg.Monitor.Party.Seniors,
		VehicleHeight: bk.VehicleHeight,
		VehicleLength: bk.VehicleLength,
		DryRun:        bk.DryRun,
	}

	refs["credentials.email"] = &req.Credentials.Email
	refs["credentials.password"] = &req.Credentials.Password
	refs["payment.name"] = &req.Payment.Name
	refs["payment.number"] = &req.Payment.Number
	refs["payment.expiry"] = &req.Payment.Expiry
	refs["payment.cvv"] = &req.Payment.CVV
	refs["payment.address"] = &req.Payment.Address
	refs["payment.city"] = &req.Payment.City
	refs["payment.province"] = &req.Payment.Province
	refs["payment.postal"] = &req.Payment.Postal
	refs["payment.country"] = &req.Payment.Country

	sources := map[string]string{
		"credentials.email":    bk.Credentials.Email,
		"credentials.password": bk.Credentials.Password,
		"payment.name":         bk.Payment.Name,
		"payment.number":       bk.Payment.Number,
		"payment.expiry":       bk.Payment.Expiry,
		"payment.cvv":          bk.Payment.CVV,
		"payment.address":      bk.Payment.Address,
		"payment.city":         bk.Payment.City,
		"payment.province":     bk.Payment.Province,
		"payment.postal":       bk.Payment.Postal,
		"payment.country":      bk.Payment.Country,
	}

	for key, dst := range refs {
		if sources[key] == "" {
			// Optional fields may be left unset; the executor applies
			// its own defaults.
			continue
		}
		value, err := r.resolve(sources[key])
		if err != nil {
			return booking.Request{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = value
	}

	return req, nil
}

func probeChecks(res *probe.Result) int {
	if res == nil {
		return 0
	}
	return res.Checks
}

func toAvailability(res *probe.Result) *state.Availability {
	if res == nil {
		return &state.Availability{}
	}
	return &state.Availability{
		Available: res.Available,
		Elapsed:   res.Elapsed,
		Checks:    res.Checks,
		Price:     res.PriceString(),
		Status:    res.Status,
		Reason:    res.Reason,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

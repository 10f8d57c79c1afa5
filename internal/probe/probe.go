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

// Package probe defines the calling contract for the external availability
// prober. The prober itself is a black box: it polls the upstream source at
// its own cadence and blocks until availability is found, its timeout
// elapses, or the invocation fails. This package only invokes it and keeps
// the three outcomes distinguishable.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	ferryerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

// DefaultBinary is the availability prober invoked when none is configured.
const DefaultBinary = "wait-for-ferry"

// Outcome is the prober's tri-state exit signal.
type Outcome int

const (
	// OutcomeAvailable means the sailing became available.
	OutcomeAvailable Outcome = iota
	// OutcomeTimedOut means the prober's timeout elapsed without
	// availability. A soft, expected result.
	OutcomeTimedOut
	// OutcomeInvalid means the invocation itself failed: malformed
	// arguments, upstream fault, or unparseable output. Treated like a
	// timeout for workflow purposes but recorded distinctly.
	OutcomeInvalid
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeAvailable:
		return "available"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "invalid"
	}
}

// Request carries the monitoring parameters for one prober invocation.
type Request struct {
	From string
	To   string
	Date string // MM/DD/YYYY
	Time string // e.g. "1:20 pm"

	Adults   int
	Children int
	Seniors  int
	Infants  int

	Vehicle bool

	PollInterval time.Duration
	Timeout      time.Duration
}

// Result is the prober's structured output.
type Result struct {
	Available bool            `json:"available"`
	Sailing   json.RawMessage `json:"sailing,omitempty"`
	Elapsed   float64         `json:"elapsed"`
	Checks    int             `json:"checks"`
	Price     any             `json:"price,omitempty"`
	Status    string          `json:"status,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// PriceString renders the price field, which the upstream payload may emit
// as either a number or a string.
func (r *Result) PriceString() string {
	if r.Price == nil {
		return ""
	}
	return fmt.Sprint(r.Price)
}

// Prober blocks until availability, timeout, or invocation failure.
type Prober interface {
	Probe(ctx context.Context, req Request) (*Result, Outcome, error)
}

// ExecProber invokes an external prober binary speaking the wait-for-ferry
// interface: parameters as flags, structured JSON on stdout with --json,
// and exit codes 0 (available), 1 (timeout), 2 (invalid input or upstream
// error).
type ExecProber struct {
	// Binary is the prober executable. Default: DefaultBinary on PATH.
	Binary string
}

// NewExecProber creates a prober for the given binary, defaulting to
// DefaultBinary when empty.
func NewExecProber(binary string) *ExecProber {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ExecProber{Binary: binary}
}

// Probe runs the prober and blocks until it exits. The call can hold for
// up to req.Timeout; the prober sleeps req.PollInterval between upstream
// checks internally, which is its concern, not ours.
func (p *ExecProber) Probe(ctx context.Context, req Request) (*Result, Outcome, error) {
	args := p.buildArgs(req)

	cmd := exec.CommandContext(ctx, p.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// The binary could not be started at all.
			return nil, OutcomeInvalid, ferryerrors.NewToolError(p.Binary, -1, "failed to invoke prober", runErr)
		}
	}

	switch exitCode {
	case 0:
		result, err := parseResult(stdout.Bytes())
		if err != nil {
			return nil, OutcomeInvalid, ferryerrors.NewToolError(p.Binary, exitCode, "unparseable prober output", err)
		}
		if !result.Available {
			// Exit 0 promises availability; disagreeing output means a
			// broken prober, not a timeout.
			return result, OutcomeInvalid, ferryerrors.NewToolError(p.Binary, exitCode, "prober exited 0 but reported unavailable", nil)
		}
		return result, OutcomeAvailable, nil

	case 1:
		// Soft failure. The JSON still carries elapsed/checks when the
		// prober got far enough to emit it.
		result, err := parseResult(stdout.Bytes())
		if err != nil {
			result = &Result{Reason: "timeout"}
		}
		return result, OutcomeTimedOut, nil

	default:
		msg := stderr.String()
		if msg == "" {
			msg = "prober invocation failed"
		}
		return nil, OutcomeInvalid, ferryerrors.NewToolError(p.Binary, exitCode, msg, runErr)
	}
}

func (p *ExecProber) buildArgs(req Request) []string {
	args := []string{
		"--from", req.From,
		"--to", req.To,
		"--date", req.Date,
		"--time", req.Time,
		"--adults", strconv.Itoa(req.Adults),
	}
	if req.Children > 0 {
		args = append(args, "--children", strconv.Itoa(req.Children))
	}
	if req.Seniors > 0 {
		args = append(args, "--seniors", strconv.Itoa(req.Seniors))
	}
	if req.Infants > 0 {
		args = append(args, "--infants", strconv.Itoa(req.Infants))
	}
	if req.Vehicle {
		args = append(args, "--vehicle")
	} else {
		args = append(args, "--no-vehicle")
	}
	args = append(args,
		"--poll-interval", strconv.Itoa(int(req.PollInterval.Seconds())),
		"--timeout", strconv.Itoa(int(req.Timeout.Seconds())),
		"--json", "--quiet",
	)
	return args
}

func parseResult(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

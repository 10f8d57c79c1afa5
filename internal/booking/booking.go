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

// Package booking defines the calling contract for the external booking
// executor. The executor drives the actual reservation flow end to end; we
// only invoke it and interpret its structured result.
//
// Every parameter is passed through the process environment, never argv:
// an argument list is observable by any other process on the host, and the
// request carries account credentials and payment data.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ferryerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

// DefaultBinary is the booking executor invoked when none is configured.
const DefaultBinary = "bc-ferries-book"

// resultMarker precedes the executor's JSON result on stdout. Everything
// before it is human-oriented progress output.
const resultMarker = "__RESULT__"

// Credentials is the booking account login.
type Credentials struct {
	Email    string
	Password string
}

// Payment is the payment instrument for the final checkout step.
type Payment struct {
	Name     string
	Number   string
	Expiry   string
	CVV      string
	Address  string
	City     string
	Province string
	Postal   string
	Country  string
}

// Request carries everything the executor needs for one booking attempt.
type Request struct {
	Departure   string
	Arrival     string
	Date        string // YYYY-MM-DD
	SailingTime string // e.g. "1:20 pm"

	Adults   int
	Children int
	Seniors  int

	VehicleHeight string
	VehicleLength string

	Credentials Credentials
	Payment     Payment

	// DryRun performs every step short of payment submission. The value
	// is passed through verbatim; overriding it is never this layer's
	// decision.
	DryRun bool
}

// Result is the executor's structured outcome.
type Result struct {
	Success            bool   `json:"success"`
	ConfirmationNumber string `json:"confirmationNumber,omitempty"`
	FailedStep         string `json:"failedStep,omitempty"`
	Error              string `json:"error,omitempty"`
	RaceCondition      bool   `json:"raceCondition,omitempty"`
}

// Executor attempts an end-to-end booking.
type Executor interface {
	Book(ctx context.Context, req Request) (*Result, error)
}

// ExecExecutor invokes an external executor binary speaking the
// bc-ferries-book interface: parameters via environment, progress on
// stdout, and a JSON result after a __RESULT__ marker line.
type ExecExecutor struct {
	// Binary is the executor executable. Default: DefaultBinary on PATH.
	Binary string
}

// NewExecExecutor creates an executor for the given binary, defaulting to
// DefaultBinary when empty.
func NewExecExecutor(binary string) *ExecExecutor {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ExecExecutor{Binary: binary}
}

// Book runs the executor and blocks until it finishes. A logical booking
// failure is reported through Result, not the error; the error covers
// invocation faults (unstartable binary, missing result marker).
func (e *ExecExecutor) Book(ctx context.Context, req Request) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.Binary)
	cmd.Env = append(os.Environ(), buildEnv(req)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, ferryerrors.NewToolError(e.Binary, -1, "failed to invoke booking executor", runErr)
		}
		// A nonzero exit still carries the structured result; fall
		// through to parse it.
	}

	result, err := parseResult(stdout.String())
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "executor produced no result"
		}
		return nil, ferryerrors.NewToolError(e.Binary, exitCode(runErr), msg, err)
	}

	return result, nil
}

// buildEnv maps the request onto the executor's environment interface.
func buildEnv(req Request) []string {
	env := []string{
		"DEPARTURE=" + req.Departure,
		"ARRIVAL=" + req.Arrival,
		"DATE=" + req.Date,
		"SAILING_TIME=" + req.SailingTime,
		"ADULTS=" + strconv.Itoa(req.Adults),
		"CHILDREN=" + strconv.Itoa(req.Children),
		"SENIORS=" + strconv.Itoa(req.Seniors),
		"VEHICLE_HEIGHT=" + req.VehicleHeight,
		"VEHICLE_LENGTH=" + req.VehicleLength,
		"BC_FERRIES_EMAIL=" + req.Credentials.Email,
		"BC_FERRIES_PASSWORD=" + req.Credentials.Password,
		"CC_NAME=" + req.Payment.Name,
		"CC_NUMBER=" + req.Payment.Number,
		"CC_EXPIRY=" + req.Payment.Expiry,
		"CC_CVV=" + req.Payment.CVV,
		"CC_ADDRESS=" + req.Payment.Address,
		"CC_CITY=" + req.Payment.City,
		"CC_PROVINCE=" + req.Payment.Province,
		"CC_POSTAL=" + req.Payment.Postal,
	}
	if req.Payment.Country != "" {
		env = append(env, "CC_COUNTRY="+req.Payment.Country)
	}
	if req.DryRun {
		env = append(env, "DRY_RUN=true")
	} else {
		env = append(env, "DRY_RUN=false")
	}
	return env
}

// parseResult extracts the JSON payload following the last result marker.
func parseResult(output string) (*Result, error) {
	idx := strings.LastIndex(output, resultMarker)
	if idx < 0 {
		return nil, fmt.Errorf("result marker %q not found in executor output", resultMarker)
	}

	payload := output[idx+len(resultMarker):]
	var result Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse executor result: %w", err)
	}
	return &result, nil
}

func exitCode(runErr error) int {
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}

// ToISODate converts a MM/DD/YYYY date to the executor's YYYY-MM-DD
// format. Values already in another format pass through unchanged, which
// matches the upstream tool's own lenient handling.
func ToISODate(date string) string {
	if t, err := time.Parse("01/02/2006", date); err == nil {
		return t.Format("2006-01-02")
	}
	return date
}

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

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

// Exit codes for ferrymon commands. A command that did what it says exits
// 0 even when the news is bad (e.g. `status` of a stopped daemon prints
// the state and exits nonzero only because "running" is the asked-for
// condition).
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewFailureError creates an error for operations that failed at runtime
func NewFailureError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Cause: cause}
}

// NewUsageError creates an error for invalid configuration or arguments
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// HandleExitError checks if an error is an ExitError and exits with the
// appropriate code.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		printSuggestion(err)
		os.Exit(exitErr.Code)
	}

	// Validation problems are usage errors; everything else is a failure.
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(err)

	var validationErr *pkgerrors.ValidationError
	if errors.As(err, &validationErr) {
		os.Exit(ExitUsage)
	}
	os.Exit(ExitFailure)
}

// printSuggestion prints the actionable hint from a validation error in
// the chain, if any.
func printSuggestion(err error) {
	var validationErr *pkgerrors.ValidationError
	if errors.As(err, &validationErr) && validationErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", validationErr.Suggestion)
	}
}

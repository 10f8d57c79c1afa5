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
	"testing"
)

func TestExitError_Error(t *testing.T) {
	err := NewFailureError("daemon did not stop", fmt.Errorf("timeout"))
	if got, want := err.Error(), "daemon did not stop: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := NewUsageError("invalid line count", nil)
	if got, want := bare.Error(), "invalid line count"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExitError_Codes(t *testing.T) {
	if NewFailureError("x", nil).Code != ExitFailure {
		t.Error("failure error must carry ExitFailure")
	}
	if NewUsageError("x", nil).Code != ExitUsage {
		t.Error("usage error must carry ExitUsage")
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewFailureError("wrapper", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

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

package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferryerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

// fakeProber writes a shell script standing in for the wait-for-ferry
// binary, capturing its argv and emitting a canned payload and exit code.
func fakeProber(t *testing.T, script string) (binary, argvFile string) {
	t.Helper()
	dir := t.TempDir()
	binary = filepath.Join(dir, "wait-for-ferry")
	argvFile = filepath.Join(dir, "argv")

	full := "#!/bin/sh\necho \"$@\" > " + argvFile + "\n" + script
	require.NoError(t, os.WriteFile(binary, []byte(full), 0755))
	return binary, argvFile
}

func testRequest() Request {
	return Request{
		From:         "Departure Bay",
		To:           "Horseshoe Bay",
		Date:         "10/15/2025",
		Time:         "1:20 pm",
		Adults:       2,
		Vehicle:      true,
		PollInterval: 60 * time.Second,
		Timeout:      3600 * time.Second,
	}
}

func TestExecProber_Available(t *testing.T) {
	binary, argvFile := fakeProber(t, `cat <<'EOF'
{"available": true, "sailing": {"departureTime": "1:20 pm"}, "elapsed": 127.5, "checks": 2, "price": 89.75, "status": "AVAILABLE"}
EOF
exit 0`)

	p := NewExecProber(binary)
	result, outcome, err := p.Probe(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeAvailable, outcome)
	assert.True(t, result.Available)
	assert.Equal(t, 2, result.Checks)
	assert.InDelta(t, 127.5, result.Elapsed, 0.001)
	assert.Equal(t, "89.75", result.PriceString())

	argv, err := os.ReadFile(argvFile)
	require.NoError(t, err)
	s := string(argv)
	assert.Contains(t, s, "--from Departure Bay")
	assert.Contains(t, s, "--to Horseshoe Bay")
	assert.Contains(t, s, "--adults 2")
	assert.Contains(t, s, "--vehicle")
	assert.NotContains(t, s, "--no-vehicle")
	assert.Contains(t, s, "--poll-interval 60")
	assert.Contains(t, s, "--timeout 3600")
	assert.Contains(t, s, "--json")
}

func TestExecProber_Timeout(t *testing.T) {
	binary, _ := fakeProber(t, `cat <<'EOF'
{"available": false, "reason": "timeout", "elapsed": 3600.2, "checks": 60}
EOF
exit 1`)

	p := NewExecProber(binary)
	result, outcome, err := p.Probe(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.False(t, result.Available)
	assert.Equal(t, "timeout", result.Reason)
	assert.Equal(t, 60, result.Checks)
}

func TestExecProber_InvocationError(t *testing.T) {
	binary, _ := fakeProber(t, `echo "Error: Must have at least one passenger" >&2
exit 2`)

	p := NewExecProber(binary)
	_, outcome, err := p.Probe(context.Background(), testRequest())

	assert.Equal(t, OutcomeInvalid, outcome)
	var terr *ferryerrors.ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.ExitCode)
	assert.Contains(t, terr.Message, "at least one passenger")
}

func TestExecProber_MissingBinary(t *testing.T) {
	p := NewExecProber(filepath.Join(t.TempDir(), "does-not-exist"))
	_, outcome, err := p.Probe(context.Background(), testRequest())

	assert.Equal(t, OutcomeInvalid, outcome)
	var terr *ferryerrors.ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, -1, terr.ExitCode)
}

func TestExecProber_ZeroExitButUnavailable(t *testing.T) {
	// A prober that exits 0 while reporting unavailable is broken and must
	// surface as an invocation fault, not as success.
	binary, _ := fakeProber(t, `echo '{"available": false, "checks": 1}'
exit 0`)

	p := NewExecProber(binary)
	_, outcome, err := p.Probe(context.Background(), testRequest())

	assert.Equal(t, OutcomeInvalid, outcome)
	assert.Error(t, err)
}

func TestExecProber_WalkOn(t *testing.T) {
	binary, argvFile := fakeProber(t, `echo '{"available": true, "checks": 1}'
exit 0`)

	req := testRequest()
	req.Vehicle = false
	req.Children = 2

	p := NewExecProber(binary)
	_, _, err := p.Probe(context.Background(), req)
	require.NoError(t, err)

	argv, err := os.ReadFile(argvFile)
	require.NoError(t, err)
	assert.Contains(t, string(argv), "--no-vehicle")
	assert.Contains(t, string(argv), "--children 2")
}

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

package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/controller"
	"github.com/ferrymon/ferrymon/internal/state"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and workflow status",
		Long: `Display the daemon's process state and the current workflow phase.

Exits 0 when the daemon is running, 1 otherwise, so the command doubles as
a scriptable liveness check.`,
		Example: `  # Human-readable status
  ferrymon status

  # Status as JSON
  ferrymon status --json

  # Extract the workflow phase
  ferrymon status --json | jq -r '.snapshot.phase'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

// statusJSON is the machine-readable status shape.
type statusJSON struct {
	State     string          `json:"state"`
	PID       int             `json:"pid,omitempty"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Snapshot  *state.Snapshot `json:"snapshot,omitempty"`
	Result    *state.Result   `json:"result,omitempty"`
}

func runStatus() error {
	c, _, err := newController()
	if err != nil {
		return shared.NewFailureError("failed to initialize controller", err)
	}

	st, err := c.Status()
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		out := statusJSON{
			State:    string(st.State),
			PID:      st.PID,
			Snapshot: st.Snapshot,
			Result:   st.Result,
		}
		if !st.StartedAt.IsZero() {
			out.StartedAt = &st.StartedAt
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		printStatus(st)
	}

	if !st.Running() {
		os.Exit(shared.ExitFailure)
	}
	return nil
}

func printStatus(st *controller.Status) {
	switch st.State {
	case controller.StateRunning:
		fmt.Println(shared.RenderOK(fmt.Sprintf("daemon running (pid %d, since %s)",
			st.PID, st.StartedAt.Format(time.RFC3339))))
	case controller.StateStale:
		fmt.Println(shared.RenderWarn(fmt.Sprintf("daemon not running (stale handle for pid %d cleared)", st.PID)))
	case controller.StateNeverStarted:
		fmt.Println(shared.RenderWarn("daemon has never been started"))
	default:
		fmt.Println(shared.RenderWarn("daemon not running"))
	}

	if snap := st.Snapshot; snap != nil {
		fmt.Println(shared.RenderLabel("phase:  ") + shared.RenderPhase(string(snap.Phase)))
		fmt.Println(shared.RenderLabel("route:  ") + snap.From + " -> " + snap.To)
		fmt.Println(shared.RenderLabel("date:   ") + snap.Date + " " + snap.Time)
		if snap.Cycle > 1 {
			fmt.Println(shared.RenderLabel("cycle:  ") + fmt.Sprint(snap.Cycle))
		}
	}

	if res := st.Result; res != nil {
		line := "failure"
		if res.Success {
			line = "success"
		}
		fmt.Println(shared.RenderLabel("last run: ") + line +
			shared.RenderLabel(" at ") + res.Timestamp.Format(time.RFC3339))
		if res.ConfirmationNumber != nil {
			fmt.Println(shared.RenderLabel("confirmation: ") + shared.Bold.Render(*res.ConfirmationNumber))
		}
		if res.Error != "" {
			fmt.Println(shared.RenderLabel("error:  ") + res.Error)
		}
	}
}

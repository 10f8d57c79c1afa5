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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/controller"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var (
		timeout time.Duration
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the monitoring daemon",
		Long: `Stop the monitoring daemon gracefully.

Sends SIGTERM and waits for the daemon to exit. With --force, escalates to
SIGKILL after the timeout expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(timeout, force)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", controller.DefaultStopTimeout, "How long to wait for graceful exit")
	cmd.Flags().BoolVar(&force, "force", false, "Escalate to SIGKILL if the timeout expires")

	return cmd
}

func runStop(timeout time.Duration, force bool) error {
	c, _, err := newController()
	if err != nil {
		return shared.NewFailureError("failed to initialize controller", err)
	}

	if err := c.Stop(timeout, force); err != nil {
		if errors.Is(err, controller.ErrNotRunning) {
			return shared.NewFailureError("daemon is not running", nil)
		}
		return err
	}

	if !shared.GetQuiet() {
		fmt.Println(shared.RenderOK("daemon stopped"))
	}
	return nil
}

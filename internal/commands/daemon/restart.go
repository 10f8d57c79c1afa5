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

	"github.com/spf13/cobra"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/controller"
)

// NewRestartCommand creates the restart command.
func NewRestartCommand() *cobra.Command {
	var confirmLive string

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the monitoring daemon",
		Long: `Restart the monitoring daemon, picking up the saved configuration.

Stops the running daemon if there is one, then starts a fresh run. A daemon
that is not running is simply started.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(confirmLive)
		},
	}

	cmd.Flags().StringVar(&confirmLive, "confirm-live", "", "Confirmation token for live (non-dry-run) booking")

	return cmd
}

func runRestart(confirmLive string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, _, err := newController()
	if err != nil {
		return shared.NewFailureError("failed to initialize controller", err)
	}

	pid, err := c.Restart(cfg, controller.StartOptions{
		ConfigPath:   shared.GetConfigPath(),
		ConfirmToken: confirmLive,
	})
	if err != nil {
		if errors.Is(err, controller.ErrLiveConfirmRequired) ||
			errors.Is(err, controller.ErrBadConfirmToken) ||
			errors.Is(err, controller.ErrIncompleteBookingConfig) {
			return shared.NewUsageError(err.Error(), nil)
		}
		return err
	}

	if !shared.GetQuiet() {
		fmt.Println(shared.RenderOK(fmt.Sprintf("daemon restarted (pid %d)", pid)))
	}
	return nil
}

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

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var confirmLive string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the monitoring daemon",
		Long: `Start the monitoring daemon in the background.

The daemon detaches from the terminal and keeps running after this command
returns. Check progress with 'ferrymon status' and 'ferrymon logs'.

When auto-booking is configured with dry-run disabled, pass the
confirmation token printed by 'ferrymon configure' via --confirm-live.`,
		Example: `  # Start monitoring with the saved configuration
  ferrymon start

  # Start a live (non-dry-run) auto-booking run
  ferrymon start --confirm-live 4f7c9b2a-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(confirmLive)
		},
	}

	cmd.Flags().StringVar(&confirmLive, "confirm-live", "", "Confirmation token for live (non-dry-run) booking")

	return cmd
}

func runStart(confirmLive string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, _, err := newController()
	if err != nil {
		return shared.NewFailureError("failed to initialize controller", err)
	}

	pid, err := c.Start(cfg, controller.StartOptions{
		ConfigPath:   shared.GetConfigPath(),
		ConfirmToken: confirmLive,
	})
	if err != nil {
		if errors.Is(err, controller.ErrAlreadyRunning) {
			return shared.NewFailureError(fmt.Sprintf("daemon is already running (pid %d)", pid), nil)
		}
		if errors.Is(err, controller.ErrLiveConfirmRequired) ||
			errors.Is(err, controller.ErrBadConfirmToken) ||
			errors.Is(err, controller.ErrIncompleteBookingConfig) {
			return shared.NewUsageError(err.Error(), nil)
		}
		return err
	}

	if !shared.GetQuiet() {
		fmt.Println(shared.RenderOK(fmt.Sprintf("daemon started (pid %d)", pid)))
		fmt.Println(shared.RenderLabel("route:  ") + cfg.Monitor.Route())
		fmt.Println(shared.RenderLabel("date:   ") + cfg.Monitor.Date)
		if cfg.AutoBook {
			mode := "dry-run"
			if !cfg.Booking.DryRun {
				mode = shared.StatusWarn.Render("LIVE")
			}
			fmt.Println(shared.RenderLabel("booking: ") + "auto-book enabled (" + mode + ")")
		}
	}
	return nil
}

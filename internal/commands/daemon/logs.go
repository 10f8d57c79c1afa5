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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/state"
)

// NewLogsCommand creates the logs command.
func NewLogsCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs [n]",
		Short: "Show daemon log output",
		Long: `Print the daemon's log stream.

With a numeric argument, prints only the last n lines. With --follow,
keeps streaming new lines until interrupted.`,
		Example: `  # Print all log lines
  ferrymon logs

  # Print the last 20 lines
  ferrymon logs 20

  # Stream new lines as they arrive
  ferrymon logs --follow`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 0
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return shared.NewUsageError(fmt.Sprintf("invalid line count %q", args[0]), nil)
				}
				n = v
			}
			return runLogs(n, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new log lines until interrupted")

	return cmd
}

func runLogs(n int, follow bool) error {
	c, store, err := newController()
	if err != nil {
		return shared.NewFailureError("failed to initialize controller", err)
	}

	lines, err := c.Logs(n)
	if err != nil {
		if errors.Is(err, state.ErrNoLogs) {
			if !follow {
				return shared.NewFailureError("no logs (daemon has never run)", nil)
			}
			// Nothing yet, but the stream may appear. Create it empty so
			// the watcher has something to attach to.
			f, err := os.OpenFile(store.LogPath(), os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return err
			}
			f.Close()
			lines = nil
		} else {
			return err
		}
	}
	for _, line := range lines {
		fmt.Println(line)
	}

	if !follow {
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.FollowLogs(ctx, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

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

// Package history implements the run-history listing command.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/config"
	historypkg "github.com/ferrymon/ferrymon/internal/history"
	"github.com/ferrymon/ferrymon/internal/state"
)

// NewCommand creates the history command.
func NewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past monitoring runs",
		Long: `List past runs from the history archive, newest first.

The archive keeps every terminal run outcome; the result shown by
'ferrymon status' only reflects the most recent one.`,
		Example: `  # List the last 20 runs
  ferrymon history

  # List everything as JSON
  ferrymon history --limit 0 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	dir, err := config.StateDir()
	if err != nil {
		return err
	}
	store, err := state.NewStore(dir)
	if err != nil {
		return err
	}

	if _, err := os.Stat(store.HistoryPath()); os.IsNotExist(err) {
		if !shared.GetQuiet() {
			fmt.Println(shared.RenderWarn("no runs recorded yet"))
		}
		return nil
	}

	archive, err := historypkg.Open(store.HistoryPath())
	if err != nil {
		return shared.NewFailureError("failed to open history archive", err)
	}
	defer archive.Close()

	entries, err := archive.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println(shared.RenderWarn("no runs recorded yet"))
		return nil
	}

	for _, e := range entries {
		printEntry(e)
	}
	return nil
}

func printEntry(e historypkg.Entry) {
	marker := shared.RenderError(e.FinishedAt.Format(time.RFC3339))
	if e.Success {
		marker = shared.RenderOK(e.FinishedAt.Format(time.RFC3339))
	}

	detail := fmt.Sprintf("%d checks", e.Checks)
	switch {
	case e.ConfirmationNumber != "":
		detail = "confirmation " + shared.Bold.Render(e.ConfirmationNumber)
	case e.BookingError != "":
		detail = fmt.Sprintf("booking failed at %s: %s", e.BookingFailedStep, e.BookingError)
	case e.Error != "":
		detail = e.Error
	}

	fmt.Printf("%s  %s  %s\n", marker, shared.RenderPhase(string(e.Phase)), detail)
	fmt.Println(shared.Muted.Render("    run " + e.RunID))
}

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

// Package cli assembles the ferrymon command tree.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ferrymon/ferrymon/internal/commands/configure"
	"github.com/ferrymon/ferrymon/internal/commands/daemon"
	"github.com/ferrymon/ferrymon/internal/commands/history"
	"github.com/ferrymon/ferrymon/internal/commands/shared"
	versioncmd "github.com/ferrymon/ferrymon/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for ferrymon
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ferrymon",
		Short: "ferrymon - BC Ferries availability monitor and auto-booker",
		Long: `ferrymon watches a BC Ferries sailing for availability and, optionally,
books it the moment space opens up. Monitoring runs as a background daemon
that survives the terminal session.

Run 'ferrymon configure' to get started, then 'ferrymon start'.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Accept underscore spellings (--poll_interval) alongside dashes.
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	// Get flag pointers from shared package
	verbose, quiet, json, config := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/ferrymon/config.yaml)")

	cmd.AddCommand(configure.NewCommand())
	cmd.AddCommand(daemon.NewStartCommand())
	cmd.AddCommand(daemon.NewStopCommand())
	cmd.AddCommand(daemon.NewRestartCommand())
	cmd.AddCommand(daemon.NewStatusCommand())
	cmd.AddCommand(daemon.NewLogsCommand())
	cmd.AddCommand(history.NewCommand())
	cmd.AddCommand(versioncmd.NewCommand())

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}

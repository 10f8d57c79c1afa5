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

// Package daemon provides the top-level daemon lifecycle commands:
// start, stop, restart, status, and logs.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/config"
	"github.com/ferrymon/ferrymon/internal/controller"
	"github.com/ferrymon/ferrymon/internal/secrets"
	"github.com/ferrymon/ferrymon/internal/state"
	pkgerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

// WorkerBinary is the detached worker executable name.
const WorkerBinary = "ferrymond"

// newController assembles a Controller against the default state directory.
func newController() (*controller.Controller, *state.Store, error) {
	dir, err := config.StateDir()
	if err != nil {
		return nil, nil, err
	}
	store, err := state.NewStore(dir)
	if err != nil {
		return nil, nil, err
	}

	binary, err := workerBinaryPath()
	if err != nil {
		return nil, nil, err
	}

	resolver := secrets.NewResolver()
	c := controller.New(controller.Options{
		Store:        store,
		DaemonBinary: binary,
		Resolve:      resolver.Resolve,
	})
	return c, store, nil
}

// workerBinaryPath locates ferrymond: first next to the running executable
// (the usual install layout), then on PATH.
func workerBinaryPath() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), WorkerBinary)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(WorkerBinary)
	if err != nil {
		return "", fmt.Errorf("%s not found next to %s or on PATH: %w", WorkerBinary, "ferrymon", err)
	}
	return path, nil
}

// loadConfig loads the saved configuration, honoring the global --config
// flag, and converts "never configured" into an actionable usage error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			return nil, pkgerrors.NewValidationError("config", "no configuration found",
				"run 'ferrymon configure' to set up monitoring")
		}
		return nil, err
	}
	return cfg, nil
}

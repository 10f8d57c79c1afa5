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

// ferrymond is the detached monitoring worker. It is normally spawned by
// 'ferrymon start' but can be run directly in the foreground for
// debugging.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ferrymon/ferrymon/internal/booking"
	"github.com/ferrymon/ferrymon/internal/config"
	"github.com/ferrymon/ferrymon/internal/history"
	"github.com/ferrymon/ferrymon/internal/lifecycle"
	"github.com/ferrymon/ferrymon/internal/log"
	"github.com/ferrymon/ferrymon/internal/probe"
	"github.com/ferrymon/ferrymon/internal/runner"
	"github.com/ferrymon/ferrymon/internal/secrets"
	"github.com/ferrymon/ferrymon/internal/state"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ferrymond %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	os.Exit(run(*configPath, logger))
}

func run(configPath string, logger *slog.Logger) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", log.Error(err))
		return 1
	}
	if configPath == "" {
		if p, err := config.ConfigPath(); err == nil {
			configPath = p
		}
	}

	stateDir, err := config.StateDir()
	if err != nil {
		logger.Error("failed to resolve state directory", log.Error(err))
		return 1
	}
	store, err := state.NewStore(stateDir)
	if err != nil {
		logger.Error("failed to open state store", log.Error(err))
		return 1
	}
	defer releaseHandle(store, logger)

	// The archive is best-effort: monitoring must not die because sqlite
	// is unhappy.
	var archive runner.Archiver
	if a, err := history.Open(store.HistoryPath()); err != nil {
		logger.Warn("history archive unavailable", log.Error(err))
	} else {
		archive = a
		defer a.Close()
	}

	proberBinary := probe.DefaultBinary
	if v := os.Getenv("FERRYMON_PROBER"); v != "" {
		proberBinary = v
	}
	executorBinary := booking.DefaultBinary
	if v := os.Getenv("FERRYMON_EXECUTOR"); v != "" {
		executorBinary = v
	}

	resolver := secrets.NewResolver()
	r := runner.New(runner.Options{
		Config:     cfg,
		Prober:     probe.NewExecProber(proberBinary),
		Executor:   booking.NewExecExecutor(executorBinary),
		Store:      store,
		Archive:    archive,
		Resolve:    resolver.Resolve,
		Logger:     logger,
		ConfigPath: configPath,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := r.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("shutting down on signal")
			return 0
		}
		logger.Error("run aborted", log.Error(err))
		return 1
	}
	if !result.Success {
		return 1
	}
	return 0
}

// releaseHandle removes the PID file if it still names this process. The
// controller writes it at spawn time; cleaning it up here keeps a normal
// exit from leaving a stale handle behind.
func releaseHandle(store *state.Store, logger *slog.Logger) {
	mgr := lifecycle.NewPIDFileManager(store.PIDPath())
	handle, err := mgr.Read()
	if err != nil || handle.PID != os.Getpid() {
		return
	}
	if err := mgr.Remove(); err != nil {
		logger.Warn("failed to remove daemon handle", log.Error(err))
	}
}

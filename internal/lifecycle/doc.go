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

/*
Package lifecycle manages the monitor daemon's process lifecycle.

It provides secure PID file management, detached process spawning, liveness
and identity checks, and lifecycle event logging for the ferrymond worker.

# PID File Management

PID files are security-sensitive as they control which process receives
shutdown signals. The package uses exclusive file locking (flock) and atomic
creation (O_EXCL) to prevent race conditions and symlink attacks:

	manager := lifecycle.NewPIDFileManager("/path/to/ferrymon.pid")
	if err := manager.Create(1234); err != nil {
	    // Handle error
	}
	defer manager.Remove()

# Process Operations

Identity validation ensures signals are sent only to ferrymond workers. A
recorded PID can be recycled by the OS for an unrelated process, so a PID
file alone is never trusted:

	pid, err := manager.Read()
	if err != nil {
	    // Handle error
	}

	if !lifecycle.IsFerrymonProcess(pid) {
	    // PID file is stale or corrupted
	}

	if err := lifecycle.SendSignal(pid, syscall.SIGTERM); err != nil {
	    // Handle error
	}

# Process Spawning

Detached spawning runs the worker in its own session so it survives the
invoking terminal:

	spawner := lifecycle.NewSpawner()
	pid, err := spawner.SpawnDetached("/path/to/ferrymond", args, logPath)
	if err != nil {
	    // Handle error
	}
*/
package lifecycle

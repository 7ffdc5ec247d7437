// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flasher

import "fmt"

// Failure categories reported in State.LastError
const (
	CategoryLaunch  = "launch"
	CategoryRuntime = "runtime"
)

// LaunchError means the flashing tool never ran: the platform is unsupported,
// the script or its interpreter is missing, or the process failed to start.
type LaunchError struct {
	// Op is "start" when the process itself failed to spawn, empty when the
	// command could not be built.
	Op  string
	Err error
}

func (e *LaunchError) Error() string {
	return e.Err.Error()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// logLine is the cause line appended to the flash log.
func (e *LaunchError) logLine() string {
	if e.Op == "start" {
		return "Error launching flash: " + e.Err.Error()
	}
	return "Error: " + e.Err.Error()
}

// ExitError means the flashing tool ran and exited with a nonzero code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("process wait failed: %v", e.Err)
	}
	return fmt.Sprintf("Process exited with code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Copyright 2026 The Svcmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package svcmux

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPreflight        = errors.New("Preflight check failed")
	ErrSpawn            = errors.New("Failed to spawn service")
	ErrBadSpec          = errors.New("Bad service specification")
	ErrDuplicateService = errors.New("Duplicate service name")
	ErrNoService        = errors.New("No such service")
	ErrNoCredential     = errors.New("Required credential not configured")
	ErrAlreadyStarted   = errors.New("Supervisor already started")
	ErrShuttingDown     = errors.New("Supervisor is shutting down")
	ErrStopTimeout      = errors.New("Process did not exit after kill")
)

// PreflightError is returned when the pre-flight checks reject the
// environment.  Nothing has been spawned when this is returned.
type PreflightError struct {
	Issues []string
}

func (e *PreflightError) Error() string {
	if len(e.Issues) == 0 {
		return ErrPreflight.Error()
	}
	return ErrPreflight.Error() + ": " + strings.Join(e.Issues, "; ")
}

func (e *PreflightError) Unwrap() error {
	return ErrPreflight
}

// SpawnError reports a service that could not be launched.  Only a
// SpawnError for a required service is ever returned from Supervisor.Run.
type SpawnError struct {
	Service  string
	Required bool
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s %s: %v", ErrSpawn.Error(), e.Service, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// StopError is recorded when a service could not be stopped cleanly.
type StopError struct {
	Service string
	Err     error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("Error stopping %s: %v", e.Service, e.Err)
}

func (e *StopError) Unwrap() error {
	return e.Err
}

// ExitCode maps the result of Supervisor.Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

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

// State is the lifecycle state of a ServiceHandle.
//
//	starting --> running --> crashed
//	    |           |
//	    +-----------+--> stopping --> stopped
//
// A handle can go straight from starting to stopping when a shutdown is
// requested during its settle delay.  StateFailed is only ever seen in the
// registry history, for a service whose spawn failed.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateCrashed
	StateStopping
	StateStopped
	StateFailed
)

var stateNames = map[State]string{
	StateStarting: "starting",
	StateRunning:  "running",
	StateCrashed:  "crashed",
	StateStopping: "stopping",
	StateStopped:  "stopped",
	StateFailed:   "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Live reports whether a process in this state may still be running.
func (s State) Live() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// StopOutcome records how a handle left the shutdown pass.
type StopOutcome int

const (
	OutcomeNone StopOutcome = iota
	OutcomeStoppedGracefully
	OutcomeForceKilled
	OutcomeStopError
)

func (o StopOutcome) String() string {
	switch o {
	case OutcomeStoppedGracefully:
		return "stopped-gracefully"
	case OutcomeForceKilled:
		return "force-killed"
	case OutcomeStopError:
		return "error-during-stop"
	}
	return ""
}

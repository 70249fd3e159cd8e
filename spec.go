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
	"fmt"
	"time"
)

// ServiceSpec is the static description of one child service.  Specs are
// copied into the Supervisor when it is created and never changed after.
type ServiceSpec struct {
	Name        string        // Unique key, used to tag log lines
	Description string        // Free text, shown by status clients
	Command     []string      // argv; Command[0] is resolved via PATH
	Directory   string        // Working directory, "" = inherit
	Env         []string      // Extra KEY=VALUE pairs for the child
	Required    bool          // Spawn failure is fatal when true
	HealthURL   string        // Optional liveness endpoint
	SettleDelay time.Duration // Pause after spawn before probing
	Credential  string        // Env store key that must be present
}

func (spec ServiceSpec) validate() error {
	if spec.Name == "" {
		return fmt.Errorf("%w: missing name", ErrBadSpec)
	}
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return fmt.Errorf("%w: %s has no command", ErrBadSpec, spec.Name)
	}
	if spec.SettleDelay < 0 {
		return fmt.Errorf("%w: %s has negative settle delay",
			ErrBadSpec, spec.Name)
	}
	return nil
}

func copySpec(spec ServiceSpec) ServiceSpec {
	spec.Command = append([]string(nil), spec.Command...)
	spec.Env = append([]string(nil), spec.Env...)
	return spec
}

// ValidateSpecs checks every spec, and that the names are unique.
func ValidateSpecs(specs []ServiceSpec) error {
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if e := spec.validate(); e != nil {
			return e
		}
		if seen[spec.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateService, spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

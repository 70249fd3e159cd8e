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
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Preflight validates the host before anything is spawned.  It returns
// false along with human readable issues when the environment cannot run
// the configured services.  Warnings are for conditions that are worth
// mentioning but do not prevent startup.
type Preflight interface {
	Check(ctx context.Context) (ok bool, issues []string, warnings []string)
}

// Checklist is the stock Preflight.  It verifies that every selected
// service's executable resolves, that working directories exist, and that
// required files are present.  An absent env file is only a warning.
type Checklist struct {
	Specs    []ServiceSpec
	Files    []string
	EnvFile  string
	lookPath func(string) (string, error)
}

// NewChecklist builds a Checklist for the services selected from c.
func NewChecklist(c *Config, specs []ServiceSpec) *Checklist {
	cl := &Checklist{Specs: specs}
	for _, f := range c.RequiredFiles {
		cl.Files = append(cl.Files, c.path(f))
	}
	cl.EnvFile = c.EnvPath()
	return cl
}

func (cl *Checklist) Check(ctx context.Context) (bool, []string, []string) {
	var issues, warnings []string
	look := cl.lookPath
	if look == nil {
		look = exec.LookPath
	}

	for _, f := range cl.Files {
		if _, e := os.Stat(f); e != nil {
			issues = append(issues, fmt.Sprintf("Required file not found: %s", f))
		}
	}
	for _, spec := range cl.Specs {
		if ctx.Err() != nil {
			issues = append(issues, ctx.Err().Error())
			break
		}
		if len(spec.Command) == 0 {
			issues = append(issues,
				fmt.Sprintf("Service %s has no command", spec.Name))
			continue
		}
		if _, e := look(spec.Command[0]); e != nil {
			issues = append(issues, fmt.Sprintf(
				"%s not available (required for %s)",
				spec.Command[0], spec.Name))
		}
		if spec.Directory != "" {
			if st, e := os.Stat(spec.Directory); e != nil || !st.IsDir() {
				issues = append(issues, fmt.Sprintf(
					"Working directory for %s not found: %s",
					spec.Name, spec.Directory))
			}
		}
	}
	if cl.EnvFile != "" {
		if _, e := os.Stat(cl.EnvFile); e != nil {
			warnings = append(warnings, fmt.Sprintf(
				"%s not found - services needing credentials may be skipped",
				cl.EnvFile))
		}
	}
	return len(issues) == 0, issues, warnings
}

// PreflightFunc adapts a plain function to the Preflight interface.
type PreflightFunc func(ctx context.Context) (bool, []string, []string)

func (f PreflightFunc) Check(ctx context.Context) (bool, []string, []string) {
	return f(ctx)
}

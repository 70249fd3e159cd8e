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

// Package svcmux runs a fixed, ordered set of local child services under a
// single supervisor.  It is a much smaller cousin of supervisord: there is
// no dependency graph, no restart policy, and nothing is persisted.  The
// Supervisor starts each service in declaration order, optionally probes
// its HTTP health endpoint once, interleaves the output of every child into
// one log stream, polls for children that die on their own, and stops
// everything in reverse order when asked to shut down.
//
// A shutdown is requested exactly once, whether it comes from SIGINT or
// SIGTERM (see SignalBridge), from a fatal startup failure, or from the
// caller's context being canceled.  Every child is placed in its own
// process group, so that stopping a service also stops anything that
// service forked.
//
package svcmux

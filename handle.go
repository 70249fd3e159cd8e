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
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServiceHandle is the runtime record of one spawned child.  The output
// pipe belongs to the handle's LogRouter for as long as the process lives;
// nothing else reads it.
type ServiceHandle struct {
	spec     ServiceSpec
	id       string
	pid      int
	cmd      *exec.Cmd
	router   *LogRouter
	started  time.Time
	state    State
	outcome  StopOutcome
	reason   string
	stamp    time.Time
	exitErr  error
	exitCode int
	done     chan struct{}
	mx       sync.Mutex
}

// spawn starts the process for spec, with stdout and stderr joined onto a
// single pipe that is handed to a new LogRouter.  The returned handle is
// in StateStarting.  The router is not started; the caller does that once
// the handle is registered.
func spawn(spec ServiceSpec, sink *Sink) (*ServiceHandle, error) {
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Directory
	if len(spec.Env) != 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcessGroup(cmd)

	pr, pw, e := os.Pipe()
	if e != nil {
		return nil, e
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if e := cmd.Start(); e != nil {
		pr.Close()
		pw.Close()
		return nil, e
	}
	// The child has its own copy now; ours must go, or the router would
	// never see end of stream.
	pw.Close()

	now := time.Now()
	h := &ServiceHandle{
		spec:     spec,
		id:       uuid.NewString(),
		pid:      cmd.Process.Pid,
		cmd:      cmd,
		router:   NewLogRouter(spec.Name, pr, sink),
		started:  now,
		state:    StateStarting,
		reason:   "Spawned",
		stamp:    now,
		exitCode: -1,
		done:     make(chan struct{}),
	}
	go h.wait()
	return h, nil
}

func (h *ServiceHandle) wait() {
	e := h.cmd.Wait()
	h.mx.Lock()
	h.exitErr = e
	if ps := h.cmd.ProcessState; ps != nil {
		h.exitCode = ps.ExitCode()
	}
	h.mx.Unlock()
	close(h.done)
}

func (h *ServiceHandle) Name() string {
	return h.spec.Name
}

// ID is an opaque identifier, unique to this spawn.
func (h *ServiceHandle) ID() string {
	return h.id
}

func (h *ServiceHandle) Pid() int {
	return h.pid
}

func (h *ServiceHandle) Spec() ServiceSpec {
	return copySpec(h.spec)
}

func (h *ServiceHandle) Started() time.Time {
	return h.started
}

func (h *ServiceHandle) Router() *LogRouter {
	return h.router
}

func (h *ServiceHandle) State() State {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.state
}

func (h *ServiceHandle) Outcome() StopOutcome {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.outcome
}

// Status returns the most recent status message, and when it was recorded.
func (h *ServiceHandle) Status() (string, time.Time) {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.reason, h.stamp
}

// Exited reports, without blocking, whether the process has been reaped.
func (h *ServiceHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has been reaped.
func (h *ServiceHandle) Done() <-chan struct{} {
	return h.done
}

// ExitStatus returns the exit code (-1 if still running or killed by a
// signal) and the error from Wait.
func (h *ServiceHandle) ExitStatus() (int, error) {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.exitCode, h.exitErr
}

func (h *ServiceHandle) setState(s State, reason string) {
	h.mx.Lock()
	h.state = s
	h.reason = reason
	h.stamp = time.Now()
	h.mx.Unlock()
}

// transition moves the handle from one state to another, and reports
// whether it did.  It is how the monitor and the shutdown pass avoid
// trampling on each other.
func (h *ServiceHandle) transition(from, to State, reason string) bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.state != from {
		return false
	}
	h.state = to
	h.reason = reason
	h.stamp = time.Now()
	return true
}

// stop asks the process (group) to terminate, waits up to grace for it,
// and kills it if it is still there.  A handle in any state may be
// stopped; one that already exited counts as stopped gracefully.  Each
// escalation is logged before it is carried out.
func (h *ServiceHandle) stop(ctx context.Context, logger *slog.Logger, grace time.Duration) (StopOutcome, error) {
	h.setState(StateStopping, "Stopping")

	if h.Exited() {
		// The leader is gone, but anything it left behind in its
		// group still gets asked to leave.
		terminate(h.cmd.Process)
		h.finish(OutcomeStoppedGracefully, "Stopped: already exited")
		return OutcomeStoppedGracefully, nil
	}

	var sigErr error
	if e := terminate(h.cmd.Process); e != nil && !errors.Is(e, os.ErrProcessDone) {
		sigErr = e
		logger.ErrorContext(ctx, "Failed sending SIGTERM, force killing",
			"pid", h.pid, "error", e)
	} else {
		timer := time.NewTimer(grace)
		select {
		case <-h.done:
			timer.Stop()
			h.finish(OutcomeStoppedGracefully, "Stopped")
			return OutcomeStoppedGracefully, nil
		case <-timer.C:
		}
		logger.WarnContext(ctx, "Graceful stop timed out, force killing",
			"pid", h.pid, "grace", grace)
	}

	if e := kill(h.cmd.Process); e != nil && !errors.Is(e, os.ErrProcessDone) {
		if sigErr == nil {
			sigErr = e
		}
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		h.finish(OutcomeForceKilled, "Stopped: force killed")
		return OutcomeForceKilled, sigErr
	case <-timer.C:
	}

	if sigErr == nil {
		sigErr = ErrStopTimeout
	}
	h.finish(OutcomeStopError, "Stop failed: "+sigErr.Error())
	return OutcomeStopError, sigErr
}

func (h *ServiceHandle) finish(o StopOutcome, reason string) {
	h.mx.Lock()
	if o == OutcomeStopError {
		// We could not confirm it is gone, so it is not "stopped".
		h.state = StateStopping
	} else {
		h.state = StateStopped
	}
	h.outcome = o
	h.reason = reason
	h.stamp = time.Now()
	h.mx.Unlock()
}

func (h *ServiceHandle) snapshot() ServiceStatus {
	code, _ := h.ExitStatus()
	h.mx.Lock()
	defer h.mx.Unlock()
	return ServiceStatus{
		Name:        h.spec.Name,
		Description: h.spec.Description,
		Required:    h.spec.Required,
		Handle:      h.id,
		Pid:         h.pid,
		State:       h.state,
		Outcome:     h.outcome,
		Status:      h.reason,
		TimeStamp:   h.stamp,
		Started:     h.started,
		ExitCode:    code,
		Forwarded:   h.router.Forwarded(),
		Filtered:    h.router.Filtered(),
	}
}

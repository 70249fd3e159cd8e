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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	svclog "github.com/svcmux/svcmux/internal/log"
)

const defaultDrainTime = time.Second

// StopResult is what the shutdown pass recorded for one service.
type StopResult struct {
	Service string
	Pid     int
	Outcome StopOutcome
	Err     error
}

// ServiceStatus is a point in time view of one service, for status
// reporting.
type ServiceStatus struct {
	Name        string
	Description string
	Required    bool
	Handle      string
	Pid         int
	State       State
	Outcome     StopOutcome
	Status      string
	TimeStamp   time.Time
	Started     time.Time
	ExitCode    int
	Forwarded   int64
	Filtered    int64
}

// Supervisor owns the lifecycle of a fixed list of services: it starts
// them in order, watches them, and stops them in reverse order.  A
// Supervisor runs once; it cannot be restarted after shutdown.
type Supervisor struct {
	name         string
	specs        []ServiceSpec
	reg          *Registry
	token        *ShutdownSignal
	probe        *HealthProbe
	probeTimeout time.Duration
	preflight    Preflight
	lookupEnv    func(string) (string, bool)
	logger       *slog.Logger
	sink         *Sink
	metrics      *Metrics
	pollInterval time.Duration
	graceTime    time.Duration
	drainTime    time.Duration
	createTime   time.Time

	started     atomic.Bool
	monitoring  atomic.Bool
	monitorDone chan struct{}
	stopOnce    sync.Once
	stopDone    chan struct{}
	results     []StopResult
}

// Option configures a Supervisor.
type Option func(*Supervisor)

func WithName(name string) Option {
	return func(s *Supervisor) { s.name = name }
}

// WithLogger sets the logger for supervisor events.  Without it, events
// are written as text records into the Sink.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithSink sets where child output goes.  The default writes to stderr
// and keeps the last MaxLogRecords lines in memory.
func WithSink(sink *Sink) Option {
	return func(s *Supervisor) { s.sink = sink }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithPreflight installs the checks run before anything is spawned.
func WithPreflight(p Preflight) Option {
	return func(s *Supervisor) { s.preflight = p }
}

// WithEnv sets the store consulted for credential markers.  The default
// is the process environment.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(s *Supervisor) { s.lookupEnv = lookup }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.pollInterval = d }
}

// WithGraceTime sets how long a service gets to exit after SIGTERM
// before it is killed.
func WithGraceTime(d time.Duration) Option {
	return func(s *Supervisor) { s.graceTime = d }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.probeTimeout = d }
}

// WithShutdownSignal shares a token with the caller, typically one a
// SignalBridge feeds.
func WithShutdownSignal(token *ShutdownSignal) Option {
	return func(s *Supervisor) { s.token = token }
}

// New creates a Supervisor for specs, which are started in the order
// given.  The specs are validated and copied.
func New(specs []ServiceSpec, opts ...Option) (*Supervisor, error) {
	if e := ValidateSpecs(specs); e != nil {
		return nil, e
	}
	s := &Supervisor{
		name:         "svcmux",
		reg:          NewRegistry(),
		pollInterval: DefaultPollInterval,
		graceTime:    DefaultGraceTime,
		probeTimeout: DefaultProbeTimeout,
		drainTime:    defaultDrainTime,
		createTime:   time.Now(),
		monitorDone:  make(chan struct{}),
		stopDone:     make(chan struct{}),
		lookupEnv:    os.LookupEnv,
	}
	for _, spec := range specs {
		s.specs = append(s.specs, copySpec(spec))
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.token == nil {
		s.token = NewShutdownSignal()
	}
	if s.sink == nil {
		s.sink = NewSink(NewLog(0), os.Stderr)
	}
	if s.logger == nil {
		s.logger = svclog.New(s.sink, false)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.probe = NewHealthProbe(s.probeTimeout)
	return s, nil
}

func (s *Supervisor) Name() string {
	return s.name
}

func (s *Supervisor) Registry() *Registry {
	return s.reg
}

func (s *Supervisor) Sink() *Sink {
	return s.sink
}

func (s *Supervisor) Token() *ShutdownSignal {
	return s.token
}

func (s *Supervisor) CreateTime() time.Time {
	return s.createTime
}

// Specs returns the services in startup order.
func (s *Supervisor) Specs() []ServiceSpec {
	rv := make([]ServiceSpec, 0, len(s.specs))
	for _, spec := range s.specs {
		rv = append(rv, copySpec(spec))
	}
	return rv
}

func (s *Supervisor) sysctx() context.Context {
	return svclog.WithService(context.Background(), SystemService)
}

// Run is the whole lifecycle: pre-flight, startup, monitoring until a
// shutdown is requested (or ctx is done), and the shutdown pass.  It
// returns nil after a clean shutdown, or the pre-flight or required spawn
// failure that aborted startup; in the latter case the shutdown pass has
// already been run over whatever was started.  A shutdown requested
// before startup began is a clean shutdown too.
func (s *Supervisor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.token.Trigger("context done")
	})
	defer stop()

	if e := s.Start(ctx); e != nil {
		if errors.Is(e, ErrAlreadyStarted) {
			return e
		}
		if errors.Is(e, ErrShuttingDown) {
			s.Shutdown(s.token.Reason())
			return nil
		}
		s.logger.ErrorContext(s.sysctx(), "Startup failed - aborting",
			"error", e)
		s.Shutdown("startup failure")
		return e
	}
	s.Monitor()
	s.Wait()
	s.Shutdown(s.token.Reason())
	return nil
}

// Start runs the pre-flight checks and then the startup sequence.  It
// returns once every service has been started (or skipped), or as soon
// as a shutdown is requested.  Only a pre-flight failure or a required
// service that fails to spawn produce an error.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.token.Fired() {
		return ErrShuttingDown
	}
	defer s.sink.Flush(s.drainTime)
	if e := s.runPreflight(ctx); e != nil {
		return e
	}

	s.logger.InfoContext(s.sysctx(), "Starting services",
		"supervisor", s.name, "count", len(s.specs))
	for _, spec := range s.specs {
		if s.token.Fired() {
			s.logger.WarnContext(s.sysctx(), "Startup interrupted",
				"reason", s.token.Reason())
			return nil
		}
		if e := s.startService(ctx, spec); e != nil {
			return e
		}
	}
	s.summary()
	return nil
}

func (s *Supervisor) runPreflight(ctx context.Context) error {
	if s.preflight == nil {
		return nil
	}
	sctx := s.sysctx()
	s.logger.InfoContext(sctx, "Checking dependencies")
	ok, issues, warnings := s.preflight.Check(ctx)
	for _, w := range warnings {
		s.logger.WarnContext(sctx, w)
	}
	if !ok {
		s.logger.ErrorContext(sctx, "Dependency check failed",
			"issues", len(issues))
		for _, issue := range issues {
			s.logger.ErrorContext(sctx, issue)
		}
		return &PreflightError{Issues: issues}
	}
	s.logger.InfoContext(sctx, "All dependencies OK")
	return nil
}

func (s *Supervisor) startService(ctx context.Context, spec ServiceSpec) error {
	ctx = svclog.WithService(ctx, spec.Name)
	s.logger.InfoContext(ctx, "Starting service",
		"command", strings.Join(spec.Command, " "))

	if spec.Credential != "" {
		if v, ok := s.lookupEnv(spec.Credential); !ok || v == "" {
			e := fmt.Errorf("%w: %s", ErrNoCredential, spec.Credential)
			return s.spawnFailed(ctx, spec, e, "credential")
		}
	}

	h, e := spawn(spec, s.sink)
	if e != nil {
		return s.spawnFailed(ctx, spec, e, "spawn")
	}
	if e := s.reg.Add(h); e != nil {
		// Names are validated in New, so this is a programming
		// error; don't leave the process behind regardless.
		h.stop(ctx, s.logger, s.graceTime)
		return s.spawnFailed(ctx, spec, e, "registry")
	}
	h.router.counter = s.metrics
	go h.router.Run()
	s.metrics.spawned(spec.Name)
	s.logger.InfoContext(ctx, "Started", "pid", h.Pid(), "handle", h.ID())

	if spec.SettleDelay > 0 {
		timer := time.NewTimer(spec.SettleDelay)
		select {
		case <-timer.C:
		case <-s.token.Done():
			timer.Stop()
			return nil
		}
	}

	if spec.HealthURL != "" {
		pctx, cancel := s.tokenContext(ctx)
		res := s.probe.Check(pctx, spec.HealthURL)
		cancel()
		s.metrics.probed(spec.Name, res.Healthy)
		if res.Healthy {
			s.logger.InfoContext(ctx, "Service is healthy",
				"url", spec.HealthURL, "elapsed", res.Elapsed)
		} else {
			s.logger.WarnContext(ctx, "Health check failed",
				"url", spec.HealthURL, "error", res.Err)
		}
	}

	if s.token.Fired() {
		return nil
	}
	h.transition(StateStarting, StateRunning, "Running")
	return nil
}

// spawnFailed applies the failure policy: fatal for a required service,
// a warning otherwise.
func (s *Supervisor) spawnFailed(ctx context.Context, spec ServiceSpec, e error, reason string) error {
	s.reg.recordFailure(spec.Name, e)
	s.metrics.spawnFailed(spec.Name, reason)
	if spec.Required {
		s.logger.ErrorContext(ctx, "Failed to start required service",
			"error", e)
		return &SpawnError{Service: spec.Name, Required: true, Err: e}
	}
	if errors.Is(e, ErrNoCredential) {
		s.logger.WarnContext(ctx, spec.Credential+" not configured - skipping")
	} else {
		s.logger.WarnContext(ctx, "Failed to start optional service - continuing",
			"error", e)
	}
	return nil
}

// tokenContext derives a context that is also canceled when shutdown is
// requested, so that nothing in the startup path outlives the request.
func (s *Supervisor) tokenContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.token.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Supervisor) summary() {
	sctx := s.sysctx()
	s.logger.InfoContext(sctx, "Startup complete", "running", s.reg.Len())
	for _, h := range s.reg.Live() {
		s.logger.InfoContext(sctx, "Service status", "name", h.Name(),
			"state", h.State().String(), "pid", h.Pid())
	}
}

// Monitor starts the liveness polling loop.  It is a no-op after the
// first call.
func (s *Supervisor) Monitor() {
	if s.monitoring.CompareAndSwap(false, true) {
		go s.monitor()
	}
}

func (s *Supervisor) monitor() {
	defer close(s.monitorDone)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	s.logger.DebugContext(s.sysctx(), "Monitoring started",
		"interval", s.pollInterval)
	for {
		select {
		case <-s.token.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Poll checks every running service once.  A service whose process has
// exited on its own is marked crashed, reported, and dropped from the live
// set; nothing is restarted.  The names of newly crashed services are
// returned.
func (s *Supervisor) Poll() []string {
	var crashed []string
	for _, h := range s.reg.Live() {
		if s.token.Fired() {
			break
		}
		if !h.Exited() {
			continue
		}
		code, e := h.ExitStatus()
		if !h.transition(StateRunning, StateCrashed,
			fmt.Sprintf("Crashed: exit code %d", code)) {
			continue
		}
		s.reg.Remove(h.Name())
		s.metrics.crashed(h.Name())
		ctx := svclog.WithService(context.Background(), h.Name())
		s.logger.ErrorContext(ctx, "Process died unexpectedly",
			"pid", h.Pid(), "exit_code", code, "error", e)
		crashed = append(crashed, h.Name())
	}
	return crashed
}

// Wait blocks until a shutdown has been requested.
func (s *Supervisor) Wait() {
	<-s.token.Done()
}

// Shutdown requests shutdown and runs the shutdown pass.  The pass runs
// once; later and concurrent callers wait for it and get the same results.
func (s *Supervisor) Shutdown(reason string) []StopResult {
	s.token.Trigger(reason)
	s.stopOnce.Do(func() {
		s.results = s.stopAll()
		close(s.stopDone)
	})
	return s.results
}

// Results returns the outcome of the shutdown pass, or nil if it has not
// completed yet.
func (s *Supervisor) Results() []StopResult {
	select {
	case <-s.stopDone:
		return s.results
	default:
		return nil
	}
}

// Stopped is closed once the shutdown pass has completed.
func (s *Supervisor) Stopped() <-chan struct{} {
	return s.stopDone
}

func (s *Supervisor) stopAll() []StopResult {
	if s.monitoring.Load() {
		<-s.monitorDone
	}
	sctx := s.sysctx()
	handles := s.reg.Reverse()
	s.logger.InfoContext(sctx, "Shutting down all services",
		"reason", s.token.Reason(), "count", len(handles))

	results := make([]StopResult, 0, len(handles))
	for _, h := range handles {
		results = append(results, s.stopService(h))
	}
	s.drain(handles)
	s.logger.InfoContext(sctx, "All services stopped")
	s.sink.Flush(s.drainTime)
	return results
}

func (s *Supervisor) stopService(h *ServiceHandle) (res StopResult) {
	ctx := svclog.WithService(context.Background(), h.Name())
	res = StopResult{Service: h.Name(), Pid: h.Pid()}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeStopError
			res.Err = &StopError{Service: h.Name(), Err: fmt.Errorf("panic: %v", r)}
			s.logger.ErrorContext(ctx, "Error stopping", "error", res.Err)
		}
	}()

	s.logger.InfoContext(ctx, "Stopping", "pid", h.Pid(),
		"state", h.State().String())
	o, e := h.stop(ctx, s.logger, s.graceTime)
	res.Outcome = o
	if e != nil {
		res.Err = &StopError{Service: h.Name(), Err: e}
	}
	switch o {
	case OutcomeStoppedGracefully:
		s.logger.InfoContext(ctx, "Stopped")
	case OutcomeForceKilled:
		s.logger.WarnContext(ctx, "Force killed", "error", e)
	default:
		s.logger.ErrorContext(ctx, "Error stopping", "error", e)
	}
	if o != OutcomeStopError {
		s.reg.Remove(h.Name())
	}
	s.metrics.stopped(h.Name(), o)
	return res
}

// drain gives the routers a bounded window to flush the last lines
// written by their (now dead) processes.
func (s *Supervisor) drain(handles []*ServiceHandle) {
	timer := time.NewTimer(s.drainTime)
	defer timer.Stop()
	for _, h := range handles {
		select {
		case <-h.router.Done():
		case <-timer.C:
			return
		}
	}
}

// Services reports every service that was spawned or failed to spawn,
// in startup order.
func (s *Supervisor) Services() []ServiceStatus {
	failures := s.reg.Failures()
	rv := make([]ServiceStatus, 0, len(s.specs))
	for _, spec := range s.specs {
		if h, ok := s.reg.Lookup(spec.Name); ok {
			rv = append(rv, h.snapshot())
		} else if e, ok := failures[spec.Name]; ok {
			rv = append(rv, ServiceStatus{
				Name:        spec.Name,
				Description: spec.Description,
				Required:    spec.Required,
				State:       StateFailed,
				Status:      "Failed to start: " + e.Error(),
				ExitCode:    -1,
			})
		}
	}
	return rv
}

// Service reports on a single service by name.
func (s *Supervisor) Service(name string) (ServiceStatus, error) {
	for _, st := range s.Services() {
		if st.Name == name {
			return st, nil
		}
	}
	return ServiceStatus{}, ErrNoService
}

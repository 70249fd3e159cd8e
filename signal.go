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
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// ShutdownSignal is a one-shot cancellation token.  It goes from unset to
// set exactly once, and never back.  Readers either poll Fired or block on
// Done.
type ShutdownSignal struct {
	fired  atomic.Bool
	reason atomic.Value
	once   sync.Once
	ch     chan struct{}
}

// NewShutdownSignal returns an unset token.
func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{ch: make(chan struct{})}
}

// Trigger sets the token.  It returns true only for the call that actually
// set it; every later call is a no-op returning false.
func (s *ShutdownSignal) Trigger(reason string) bool {
	first := false
	s.once.Do(func() {
		s.reason.Store(reason)
		s.fired.Store(true)
		close(s.ch)
		first = true
	})
	return first
}

// Fired reports whether the token has been set.
func (s *ShutdownSignal) Fired() bool {
	return s.fired.Load()
}

// Done is closed when the token is set.
func (s *ShutdownSignal) Done() <-chan struct{} {
	return s.ch
}

// Reason returns what the first Trigger was called with.
func (s *ShutdownSignal) Reason() string {
	if v, ok := s.reason.Load().(string); ok {
		return v
	}
	return ""
}

// SignalBridge turns SIGINT and SIGTERM into a single Trigger on a
// ShutdownSignal.  The handling goroutine never does anything but set the
// token and log; the shutdown work itself happens on the Supervisor's own
// control path.
type SignalBridge struct {
	token  *ShutdownSignal
	logger *slog.Logger
	sigs   chan os.Signal
	quit   chan struct{}
	done   chan struct{}
	start  sync.Once
	once   sync.Once
}

// NewSignalBridge creates a bridge feeding token.  It does not start
// listening until Start is called.
func NewSignalBridge(token *ShutdownSignal, logger *slog.Logger) *SignalBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalBridge{
		token:  token,
		logger: logger,
		sigs:   make(chan os.Signal, 2),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the termination signals.
func (b *SignalBridge) Start() {
	b.start.Do(func() {
		signal.Notify(b.sigs, syscall.SIGINT, syscall.SIGTERM)
		go b.run()
	})
}

func (b *SignalBridge) run() {
	defer close(b.done)
	for {
		select {
		case sig := <-b.sigs:
			b.deliver(sig)
		case <-b.quit:
			return
		}
	}
}

func (b *SignalBridge) deliver(sig os.Signal) {
	if b.token.Trigger("received " + sig.String()) {
		b.logger.Info("Shutdown requested", "service", SystemService,
			"signal", sig.String())
	} else {
		b.logger.Warn("Shutdown already in progress",
			"service", SystemService, "signal", sig.String())
	}
}

// Stop unsubscribes and waits for the handling goroutine to exit.  It is
// safe to call more than once.
func (b *SignalBridge) Stop() {
	b.start.Do(func() {
		// Never started, so there is no goroutine to wait for.
		close(b.done)
	})
	b.once.Do(func() {
		signal.Stop(b.sigs)
		close(b.quit)
	})
	<-b.done
}

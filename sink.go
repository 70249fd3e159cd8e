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
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SystemService tags records that come from the supervisor itself rather
// than from a child.
const SystemService = "system"

const defaultSinkQueue = 1024

// Sink is the one place every line of output ends up.  Child output
// (through Line) and supervisor records (through Write, which is what the
// slog handler writes into) are appended to the in-memory Log at once,
// then fanned out to every registered writer.
//
// Writers are driven one line at a time, so output from concurrent routers
// never interleaves within a line.  When the writers are free a line is
// written by the caller.  When they are busy it goes on a bounded queue
// drained by a pump goroutine.  If a writer blocks, routers wait for room
// on the queue, but supervisor records never wait: once the queue is full
// their console copy is dropped and counted.  The Log still has them.
type Sink struct {
	writers []io.Writer
	log     *Log
	lock    sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	pumping bool
	max     int
	busy    sync.Mutex // held while writing to the writers
	dropped atomic.Int64
}

// NewSink returns a Sink recording into log (which may be nil) and
// copying to the given writers.
func NewSink(log *Log, writers ...io.Writer) *Sink {
	s := &Sink{
		log:     log,
		writers: append([]io.Writer(nil), writers...),
		max:     defaultSinkQueue,
	}
	s.cond = sync.NewCond(&s.lock)
	return s
}

// Line records one line of output from the named service.  The console
// form is "[service] text".  It may wait if the writers are stalled.
func (s *Sink) Line(service, text string) {
	s.lock.Lock()
	if s.log != nil {
		s.log.Append(service, text)
	}
	s.emit([]byte("["+service+"] "+text+"\n"), true)
}

// Write implements io.Writer for supervisor records.  Each newline
// delimited line becomes its own Log record.  Write never waits on a
// stalled writer.
func (s *Sink) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	s.lock.Lock()
	if s.log != nil {
		for _, line := range strings.Split(str, "\n") {
			s.log.Append(SystemService, line)
		}
	}
	s.emit(append([]byte(nil), b...), false)
	return len(b), nil
}

// emit is called with s.lock held and releases it.
func (s *Sink) emit(b []byte, wait bool) {
	if len(s.queue) == 0 && !s.pumping && s.busy.TryLock() {
		writers := s.writers
		s.lock.Unlock()
		for _, w := range writers {
			w.Write(b)
		}
		s.busy.Unlock()
		return
	}
	for len(s.queue) >= s.max {
		if !wait {
			s.dropped.Add(1)
			s.lock.Unlock()
			return
		}
		s.cond.Wait()
	}
	s.queue = append(s.queue, b)
	if !s.pumping {
		s.pumping = true
		go s.pump()
	}
	s.lock.Unlock()
}

func (s *Sink) pump() {
	s.busy.Lock()
	defer s.busy.Unlock()
	for {
		s.lock.Lock()
		if len(s.queue) == 0 {
			s.pumping = false
			s.lock.Unlock()
			return
		}
		b := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		writers := s.writers
		s.cond.Broadcast()
		s.lock.Unlock()
		for _, w := range writers {
			w.Write(b)
		}
	}
}

// Flush waits up to d for queued lines to reach the writers.  It reports
// whether they did.
func (s *Sink) Flush(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		s.lock.Lock()
		idle := len(s.queue) == 0 && !s.pumping && s.busy.TryLock()
		s.lock.Unlock()
		if idle {
			s.busy.Unlock()
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// Dropped returns how many supervisor records were kept off the writers
// because the queue was full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// AddWriter adds a destination.  A writer is only added once.
func (s *Sink) AddWriter(w io.Writer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, x := range s.writers {
		if x == w {
			return
		}
	}
	s.writers = append(append([]io.Writer(nil), s.writers...), w)
}

// DelWriter removes a destination added earlier.
func (s *Sink) DelWriter(w io.Writer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i, x := range s.writers {
		if x == w {
			writers := append([]io.Writer(nil), s.writers[:i]...)
			s.writers = append(writers, s.writers[i+1:]...)
			break
		}
	}
}

// Log returns the in-memory record of everything written.
func (s *Sink) Log() *Log {
	return s.log
}

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
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// NoiseTokens are the case-insensitive substrings that cause a child's
// output line to be dropped.
var NoiseTokens = []string{"deprecation", "warning"}

// LineCounter is notified of each line a router handles.  Metrics
// implements it.
type LineCounter interface {
	LineForwarded(service string)
	LineFiltered(service string)
}

// LogRouter pumps one child's combined output into the Sink, one line at
// a time, until the stream ends.  Each router runs on its own goroutine
// and only ever blocks itself.
type LogRouter struct {
	name      string
	r         io.ReadCloser
	sink      *Sink
	counter   LineCounter
	forwarded atomic.Int64
	filtered  atomic.Int64
	done      chan struct{}
}

// NewLogRouter binds a router to a stream.  The router owns r and closes
// it when the stream ends.
func NewLogRouter(name string, r io.ReadCloser, sink *Sink) *LogRouter {
	return &LogRouter{
		name: name,
		r:    r,
		sink: sink,
		done: make(chan struct{}),
	}
}

// IsNoise reports whether a line should be kept off the sink.
func IsNoise(line string) bool {
	l := strings.ToLower(line)
	for _, tok := range NoiseTokens {
		if strings.Contains(l, tok) {
			return true
		}
	}
	return false
}

// Run reads until end of stream.  It is meant to be called with go.
func (lr *LogRouter) Run() {
	defer close(lr.done)
	defer lr.r.Close()

	reader := bufio.NewReader(lr.r)
	for {
		line, err := reader.ReadString('\n')
		lr.route(line)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				lr.sink.Line(lr.name, "log stream error: "+err.Error())
			}
			return
		}
	}
}

func (lr *LogRouter) route(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	if IsNoise(line) {
		lr.filtered.Add(1)
		if lr.counter != nil {
			lr.counter.LineFiltered(lr.name)
		}
		return
	}
	lr.forwarded.Add(1)
	if lr.counter != nil {
		lr.counter.LineForwarded(lr.name)
	}
	lr.sink.Line(lr.name, line)
}

// Done is closed once the stream has ended and the router has exited.
func (lr *LogRouter) Done() <-chan struct{} {
	return lr.done
}

// Forwarded is the number of lines written to the sink so far.
func (lr *LogRouter) Forwarded() int64 {
	return lr.forwarded.Load()
}

// Filtered is the number of noise lines dropped so far.
func (lr *LogRouter) Filtered() int64 {
	return lr.filtered.Load()
}

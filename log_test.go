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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogRing(t *testing.T) {
	Convey("Given a small log", t, func() {
		log := NewLog(4)
		_, id0 := log.GetRecords("", 0)

		Convey("An unchanged log returns nothing for its own ID", func() {
			recs, id := log.GetRecords("", id0)
			So(recs, ShouldBeNil)
			So(id, ShouldEqual, id0)
		})

		Convey("It keeps only the newest records", func() {
			for i := 0; i < 6; i++ {
				log.Append("core", fmt.Sprintf("line %d", i))
			}
			recs, id := log.GetRecords("", 0)
			So(id, ShouldNotEqual, id0)
			So(len(recs), ShouldEqual, 4)
			So(recs[0].Text, ShouldEqual, "line 2")
			So(recs[3].Text, ShouldEqual, "line 5")
			So(recs[3].Id, ShouldBeGreaterThan, recs[0].Id)
		})

		Convey("Records can be filtered by service", func() {
			log.Append("core", "a")
			log.Append("web", "b")
			log.Append("core", "c")
			recs, _ := log.GetRecords("web", 0)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Text, ShouldEqual, "b")
		})

		Convey("Since returns only newer records", func() {
			log.Append("core", "a")
			recs, _ := log.GetRecords("", 0)
			last := recs[0].Id
			log.Append("core", "b")
			log.Append("core", "c")
			newer, _ := log.Since(last)
			So(len(newer), ShouldEqual, 2)
			So(newer[0].Text, ShouldEqual, "b")
			none, _ := log.Since(newer[1].Id)
			So(none, ShouldBeNil)
		})

		Convey("Watch wakes up on append", func() {
			go func() {
				time.Sleep(20 * time.Millisecond)
				log.Append("core", "wake")
			}()
			id := log.Watch(id0, 5*time.Second)
			So(id, ShouldNotEqual, id0)
		})

		Convey("Watch gives up after its expiry", func() {
			start := time.Now()
			id := log.Watch(id0, 30*time.Millisecond)
			So(id, ShouldEqual, id0)
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
		})

		Convey("Clear empties it", func() {
			log.Append("core", "a")
			log.Clear()
			recs, _ := log.GetRecords("", 0)
			So(len(recs), ShouldEqual, 0)
		})
	})
}

func TestSink(t *testing.T) {
	Convey("A sink fans out and records", t, func() {
		a, b := &syncBuffer{}, &syncBuffer{}
		log := NewLog(0)
		sink := NewSink(log, a)
		sink.AddWriter(b)
		sink.AddWriter(b)
		sink.Line("core", "hello")
		sink.Write([]byte("level=INFO msg=one\nlevel=INFO msg=two\n"))
		So(a.String(), ShouldEqual, b.String())
		So(a.String(), ShouldStartWith, "[core] hello\n")
		recs, _ := log.GetRecords(SystemService, 0)
		So(len(recs), ShouldEqual, 2)

		sink.DelWriter(b)
		sink.Line("core", "again")
		So(b.String(), ShouldNotContainSubstring, "again")
		So(a.String(), ShouldContainSubstring, "again")
		So(sink.Log(), ShouldEqual, log)
	})

	Convey("A blocked writer stalls only the routers", t, func() {
		w := &gatedWriter{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
		log := NewLog(0)
		sink := NewSink(log, w)
		sink.max = 2

		first := make(chan struct{})
		go func() {
			sink.Line("a", "one")
			close(first)
		}()
		<-w.entered

		So(returnsWithin(time.Second, func() {
			sink.Write([]byte("level=INFO msg=queued\n"))
			sink.Line("b", "two")
		}), ShouldBeTrue)

		third := make(chan struct{})
		go func() {
			sink.Line("c", "three")
			close(third)
		}()
		select {
		case <-third:
			So("router did not wait for the writer", ShouldBeEmpty)
		case <-time.After(100 * time.Millisecond):
		}

		So(returnsWithin(time.Second, func() {
			sink.Write([]byte("level=ERROR msg=dropped\n"))
		}), ShouldBeTrue)
		So(sink.Dropped(), ShouldEqual, 1)
		all, _ := log.GetRecords("", 0)
		So(len(all), ShouldEqual, 5)
		recs, _ := log.GetRecords(SystemService, 0)
		So(len(recs), ShouldEqual, 2)

		close(w.gate)
		<-first
		<-third
		So(sink.Flush(time.Second), ShouldBeTrue)
		So(w.buf.String(), ShouldEqual,
			"[a] one\nlevel=INFO msg=queued\n[b] two\n[c] three\n")
	})
}

// gatedWriter blocks every write until gate is closed.
type gatedWriter struct {
	gate    chan struct{}
	entered chan struct{}
	buf     syncBuffer
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	select {
	case w.entered <- struct{}{}:
	default:
	}
	<-w.gate
	return w.buf.Write(b)
}

func returnsWithin(d time.Duration, f func()) bool {
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

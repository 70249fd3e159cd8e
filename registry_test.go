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
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func fakeHandle(name string) *ServiceHandle {
	return &ServiceHandle{
		spec:   ServiceSpec{Name: name, Command: []string{"true"}},
		state:  StateRunning,
		done:   make(chan struct{}),
		router: NewLogRouter(name, nil, nil),
	}
}

func handleNames(hs []*ServiceHandle) []string {
	rv := make([]string, 0, len(hs))
	for _, h := range hs {
		rv = append(rv, h.Name())
	}
	return rv
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry with three services", t, func() {
		r := NewRegistry()
		So(r.Add(fakeHandle("core")), ShouldBeNil)
		So(r.Add(fakeHandle("messaging")), ShouldBeNil)
		So(r.Add(fakeHandle("web")), ShouldBeNil)

		Convey("Live follows insertion order", func() {
			So(handleNames(r.Live()), ShouldResemble,
				[]string{"core", "messaging", "web"})
			So(r.Len(), ShouldEqual, 3)
		})

		Convey("Reverse is the exact reverse", func() {
			So(handleNames(r.Reverse()), ShouldResemble,
				[]string{"web", "messaging", "core"})
		})

		Convey("A name can only be added once", func() {
			So(r.Add(fakeHandle("web")), ShouldEqual, ErrDuplicateService)
			So(r.Len(), ShouldEqual, 3)
		})

		Convey("Removing keeps order and history", func() {
			r.Remove("messaging")
			r.Remove("nosuch")
			So(handleNames(r.Live()), ShouldResemble, []string{"core", "web"})
			So(handleNames(r.Reverse()), ShouldResemble, []string{"web", "core"})
			_, ok := r.Get("messaging")
			So(ok, ShouldBeFalse)
			h, ok := r.Lookup("messaging")
			So(ok, ShouldBeTrue)
			So(h.Name(), ShouldEqual, "messaging")
			So(len(r.History()), ShouldEqual, 3)

			Convey("And a removed name still cannot come back", func() {
				So(r.Add(fakeHandle("messaging")), ShouldEqual,
					ErrDuplicateService)
			})
		})

		Convey("Failures are remembered separately", func() {
			r.recordFailure("extra", ErrSpawn)
			So(r.Failures(), ShouldContainKey, "extra")
			So(r.Add(fakeHandle("extra")), ShouldEqual, ErrDuplicateService)
		})
	})
}

func TestStateNames(t *testing.T) {
	Convey("States and outcomes have stable names", t, func() {
		So(StateStarting.String(), ShouldEqual, "starting")
		So(StateRunning.String(), ShouldEqual, "running")
		So(StateCrashed.String(), ShouldEqual, "crashed")
		So(StateStopping.String(), ShouldEqual, "stopping")
		So(StateStopped.String(), ShouldEqual, "stopped")
		So(StateFailed.String(), ShouldEqual, "failed")
		So(State(42).String(), ShouldEqual, "unknown")
		So(OutcomeStoppedGracefully.String(), ShouldEqual, "stopped-gracefully")
		So(OutcomeForceKilled.String(), ShouldEqual, "force-killed")
		So(OutcomeStopError.String(), ShouldEqual, "error-during-stop")
		So(StateStarting.Live(), ShouldBeTrue)
		So(StateCrashed.Live(), ShouldBeFalse)
	})
}

func TestValidateSpecs(t *testing.T) {
	Convey("Spec validation", t, func() {
		ok := ServiceSpec{Name: "a", Command: []string{"true"}}
		So(ValidateSpecs([]ServiceSpec{ok}), ShouldBeNil)

		Convey("Rejects a missing name", func() {
			e := ValidateSpecs([]ServiceSpec{{Command: []string{"true"}}})
			So(errors.Is(e, ErrBadSpec), ShouldBeTrue)
		})
		Convey("Rejects a missing command", func() {
			e := ValidateSpecs([]ServiceSpec{{Name: "a"}})
			So(errors.Is(e, ErrBadSpec), ShouldBeTrue)
		})
		Convey("Rejects duplicate names", func() {
			e := ValidateSpecs([]ServiceSpec{ok, ok})
			So(errors.Is(e, ErrDuplicateService), ShouldBeTrue)
		})
		Convey("New refuses bad specs", func() {
			s, e := New([]ServiceSpec{{Name: "a"}})
			So(s, ShouldBeNil)
			So(e, ShouldNotBeNil)
		})
	})
}

func TestExitCode(t *testing.T) {
	Convey("Only errors map to a non-zero exit", t, func() {
		So(ExitCode(nil), ShouldEqual, 0)
		So(ExitCode(&PreflightError{Issues: []string{"x"}}), ShouldEqual, 1)
		So(ExitCode(&SpawnError{Service: "core", Required: true, Err: ErrSpawn}),
			ShouldEqual, 1)
	})
}

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

//go:build unix

package svcmux

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// metricValue sums the samples of a family whose labels include all of
// the given ones.
func metricValue(reg *prometheus.Registry, name string, labels map[string]string) float64 {
	mfs, e := reg.Gather()
	So(e, ShouldBeNil)
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					match++
				}
			}
			if match != len(labels) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestMetrics(t *testing.T) {
	Convey("Given a supervisor with a metrics registry", t, func() {
		reg := prometheus.NewRegistry()
		core := shSpec("core",
			"echo one; echo 'a warning'; echo two; exec sleep 30")
		bot := sleeper("messaging")
		bot.Credential = "BOT_TOKEN"
		s, _ := newTestSupervisor([]ServiceSpec{core, bot},
			WithMetrics(NewMetrics(reg)))
		So(s.Start(context.Background()), ShouldBeNil)

		svc := map[string]string{"service": "core"}
		So(metricValue(reg, "svcmux_spawns_total", svc), ShouldEqual, 1)
		So(metricValue(reg, "svcmux_service_up", svc), ShouldEqual, 1)
		So(metricValue(reg, "svcmux_spawn_failures_total",
			map[string]string{"service": "messaging", "reason": "credential"}),
			ShouldEqual, 1)

		So(eventually(2*time.Second, func() bool {
			return s.Registry().Live()[0].Router().Forwarded() == 2
		}), ShouldBeTrue)
		So(metricValue(reg, "svcmux_log_lines_total",
			map[string]string{"service": "core", "disposition": "forwarded"}),
			ShouldEqual, 2)
		So(metricValue(reg, "svcmux_log_lines_total",
			map[string]string{"service": "core", "disposition": "filtered"}),
			ShouldEqual, 1)

		s.Shutdown("test")
		So(metricValue(reg, "svcmux_service_up", svc), ShouldEqual, 0)
		So(metricValue(reg, "svcmux_stops_total",
			map[string]string{"service": "core", "outcome": "stopped-gracefully"}),
			ShouldEqual, 1)
	})
}

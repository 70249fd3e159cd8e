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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the supervisor's Prometheus collectors.  Each Supervisor
// gets its own set, registered on whatever Registerer it was given, so
// that several supervisors (as in tests) never collide.
type Metrics struct {
	up            *prometheus.GaugeVec
	spawns        *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	probes        *prometheus.CounterVec
	crashes       *prometheus.CounterVec
	stops         *prometheus.CounterVec
	lines         *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.  A nil Registerer
// yields unregistered collectors, which still count.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		up: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svcmux_service_up",
			Help: "1 while a service is starting or running",
		}, []string{"service"}),
		spawns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "svcmux_spawns_total",
			Help: "Child processes spawned",
		}, []string{"service"}),
		spawnFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "svcmux_spawn_failures_total",
			Help: "Services that could not be spawned or were skipped",
		}, []string{"service", "reason"}),
		probes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "svcmux_health_probes_total",
			Help: "Health probes by result",
		}, []string{"service", "result"}),
		crashes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "svcmux_crashes_total",
			Help: "Services that exited on their own",
		}, []string{"service"}),
		stops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "svcmux_stops_total",
			Help: "Shutdown outcomes",
		}, []string{"service", "outcome"}),
		lines: f.NewCounterVec(prometheus.CounterOpts{
			Name: "svcmux_log_lines_total",
			Help: "Child output lines, forwarded or filtered",
		}, []string{"service", "disposition"}),
	}
}

func (m *Metrics) spawned(name string) {
	m.spawns.WithLabelValues(name).Inc()
	m.up.WithLabelValues(name).Set(1)
}

func (m *Metrics) spawnFailed(name, reason string) {
	m.spawnFailures.WithLabelValues(name, reason).Inc()
}

func (m *Metrics) probed(name string, healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	m.probes.WithLabelValues(name, result).Inc()
}

func (m *Metrics) crashed(name string) {
	m.crashes.WithLabelValues(name).Inc()
	m.up.WithLabelValues(name).Set(0)
}

func (m *Metrics) stopped(name string, o StopOutcome) {
	m.stops.WithLabelValues(name, o.String()).Inc()
	m.up.WithLabelValues(name).Set(0)
}

func (m *Metrics) LineForwarded(service string) {
	m.lines.WithLabelValues(service, "forwarded").Inc()
}

func (m *Metrics) LineFiltered(service string) {
	m.lines.WithLabelValues(service, "filtered").Inc()
}

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

package rest

import (
	"time"

	"github.com/svcmux/svcmux"
)

const (
	// PollTimeHeader asks the server to hold a conditional GET for up to
	// this many seconds, waiting for the resource to change.
	PollTimeHeader = "X-Svcmux-Poll-Time"

	// MaxPollTime caps how long the server holds a request.
	MaxPollTime = 300
)

// SupervisorInfo describes the supervisor as a whole.
type SupervisorInfo struct {
	Name         string    `json:"name"`
	CreateTime   time.Time `json:"created"`
	Services     int       `json:"services"`
	ShuttingDown bool      `json:"shuttingDown"`
	Reason       string    `json:"reason,omitempty"`
}

// ServiceInfo is the wire form of svcmux.ServiceStatus.
type ServiceInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Handle      string    `json:"handle,omitempty"`
	Pid         int       `json:"pid"`
	State       string    `json:"state"`
	Outcome     string    `json:"outcome,omitempty"`
	Status      string    `json:"status"`
	TimeStamp   time.Time `json:"tstamp"`
	Started     time.Time `json:"started"`
	ExitCode    int       `json:"exitCode"`
	Forwarded   int64     `json:"forwarded"`
	Filtered    int64     `json:"filtered"`
}

// NewServiceInfo converts a status snapshot to its wire form.
func NewServiceInfo(st svcmux.ServiceStatus) *ServiceInfo {
	info := &ServiceInfo{
		Name:        st.Name,
		Description: st.Description,
		Required:    st.Required,
		Handle:      st.Handle,
		Pid:         st.Pid,
		State:       st.State.String(),
		Status:      st.Status,
		TimeStamp:   st.TimeStamp,
		Started:     st.Started,
		ExitCode:    st.ExitCode,
		Forwarded:   st.Forwarded,
		Filtered:    st.Filtered,
	}
	if st.Outcome != svcmux.OutcomeNone {
		info.Outcome = st.Outcome.String()
	}
	return info
}

// Running reports whether the service has a live process.
func (info *ServiceInfo) Running() bool {
	switch info.State {
	case svcmux.StateStarting.String(), svcmux.StateRunning.String(),
		svcmux.StateStopping.String():
		return true
	}
	return false
}

// Failed reports whether the service crashed or never started.
func (info *ServiceInfo) Failed() bool {
	return info.State == svcmux.StateCrashed.String() ||
		info.State == svcmux.StateFailed.String()
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

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
	"sync"
)

// Registry maps service names to their handles.  Iteration follows
// insertion order, which is also the startup order; Reverse gives the
// order in which services are stopped.  Handles stay in the history after
// they leave the live set, so that status clients can still see them.
type Registry struct {
	live    map[string]*ServiceHandle
	order   []string
	history []*ServiceHandle
	failed  map[string]error
	mx      sync.RWMutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		live:   make(map[string]*ServiceHandle),
		failed: make(map[string]error),
	}
}

// Add registers a freshly spawned handle.  A name may only be registered
// once per Registry, even after its handle has been removed.
func (r *Registry) Add(h *ServiceHandle) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	name := h.Name()
	for _, x := range r.history {
		if x.Name() == name {
			return ErrDuplicateService
		}
	}
	if _, ok := r.failed[name]; ok {
		return ErrDuplicateService
	}
	r.live[name] = h
	r.order = append(r.order, name)
	r.history = append(r.history, h)
	return nil
}

// Remove takes a handle out of the live set.
func (r *Registry) Remove(name string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.live[name]; !ok {
		return
	}
	delete(r.live, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the live handle for a name.
func (r *Registry) Get(name string) (*ServiceHandle, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	h, ok := r.live[name]
	return h, ok
}

// Live returns the live handles in startup order.
func (r *Registry) Live() []*ServiceHandle {
	r.mx.RLock()
	defer r.mx.RUnlock()
	rv := make([]*ServiceHandle, 0, len(r.order))
	for _, n := range r.order {
		rv = append(rv, r.live[n])
	}
	return rv
}

// Reverse returns the live handles, last started first.
func (r *Registry) Reverse() []*ServiceHandle {
	rv := r.Live()
	for i, j := 0, len(rv)-1; i < j; i, j = i+1, j-1 {
		rv[i], rv[j] = rv[j], rv[i]
	}
	return rv
}

// Len is the size of the live set.
func (r *Registry) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.live)
}

// History returns every handle ever added, in startup order.
func (r *Registry) History() []*ServiceHandle {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return append([]*ServiceHandle(nil), r.history...)
}

// Lookup finds a handle by name in the history.
func (r *Registry) Lookup(name string) (*ServiceHandle, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	for _, h := range r.history {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

func (r *Registry) recordFailure(name string, e error) {
	r.mx.Lock()
	r.failed[name] = e
	r.mx.Unlock()
}

// Failures returns the services that could not be spawned, and why.
func (r *Registry) Failures() map[string]error {
	r.mx.RLock()
	defer r.mx.RUnlock()
	rv := make(map[string]error, len(r.failed))
	for k, v := range r.failed {
		rv[k] = v
	}
	return rv
}

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
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProbeResult is the outcome of a single health check.  Err is only for
// reporting; every kind of failure is just Healthy == false.
type ProbeResult struct {
	URL     string
	Healthy bool
	Status  int
	Elapsed time.Duration
	Err     error
}

// HealthProbe performs one bounded GET against a health endpoint.  It
// never retries; if a caller wants a retry policy, that is the caller's
// business.
type HealthProbe struct {
	client  *http.Client
	timeout time.Duration
}

// NewHealthProbe returns a probe whose requests give up after timeout.
func NewHealthProbe(timeout time.Duration) *HealthProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	t := &http.Transport{
		Proxy:             nil,
		DisableKeepAlives: true,
	}
	return &HealthProbe{
		client:  &http.Client{Transport: t, Timeout: timeout},
		timeout: timeout,
	}
}

// Timeout returns the per-request bound.
func (p *HealthProbe) Timeout() time.Duration {
	return p.timeout
}

// Check issues exactly one request.  It returns healthy only for a 2xx
// status received within the timeout.
func (p *HealthProbe) Check(ctx context.Context, url string) (res ProbeResult) {
	res.URL = url
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, e := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if e != nil {
		res.Err = e
		return res
	}
	rsp, e := p.client.Do(req)
	if e != nil {
		res.Err = e
		return res
	}
	// Drain a little so the server doesn't see a reset; the body is
	// otherwise irrelevant.
	io.CopyN(io.Discard, rsp.Body, 4096)
	rsp.Body.Close()

	res.Status = rsp.StatusCode
	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		res.Err = fmt.Errorf("unexpected status: %s", rsp.Status)
		return res
	}
	res.Healthy = true
	return res
}

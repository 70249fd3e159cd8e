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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHealthProbe(t *testing.T) {
	Convey("Given a health probe with a short timeout", t, func() {
		probe := NewHealthProbe(100 * time.Millisecond)
		So(probe.Timeout(), ShouldEqual, 100*time.Millisecond)
		ctx := context.Background()

		Convey("A 200 is healthy", func() {
			srv := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(`{"status":"ok"}`))
				}))
			defer srv.Close()
			res := probe.Check(ctx, srv.URL+"/health")
			So(res.Healthy, ShouldBeTrue)
			So(res.Status, ShouldEqual, http.StatusOK)
			So(res.Err, ShouldBeNil)
		})

		Convey("A 204 is healthy too", func() {
			srv := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusNoContent)
				}))
			defer srv.Close()
			So(probe.Check(ctx, srv.URL).Healthy, ShouldBeTrue)
		})

		Convey("A 503 is unhealthy", func() {
			srv := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusServiceUnavailable)
				}))
			defer srv.Close()
			res := probe.Check(ctx, srv.URL)
			So(res.Healthy, ShouldBeFalse)
			So(res.Status, ShouldEqual, http.StatusServiceUnavailable)
			So(res.Err, ShouldNotBeNil)
		})

		Convey("A slow endpoint is unhealthy and bounded", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					calls.Add(1)
					select {
					case <-r.Context().Done():
					case <-time.After(2 * time.Second):
					}
				}))
			defer srv.Close()
			start := time.Now()
			res := probe.Check(ctx, srv.URL)
			So(res.Healthy, ShouldBeFalse)
			So(res.Err, ShouldNotBeNil)
			So(time.Since(start), ShouldBeLessThan, time.Second)
			So(calls.Load(), ShouldEqual, 1)
		})

		Convey("A refused connection is unhealthy", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			url := srv.URL
			srv.Close()
			res := probe.Check(ctx, url)
			So(res.Healthy, ShouldBeFalse)
			So(res.Err, ShouldNotBeNil)
		})

		Convey("A malformed URL is unhealthy", func() {
			res := probe.Check(ctx, "://nope")
			So(res.Healthy, ShouldBeFalse)
			So(res.Err, ShouldNotBeNil)
		})

		Convey("A canceled context is unhealthy", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			res := probe.Check(cctx, "http://127.0.0.1:1/health")
			So(res.Healthy, ShouldBeFalse)
		})
	})
}

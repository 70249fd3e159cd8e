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

package rest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/svcmux/svcmux"
	"github.com/svcmux/svcmux/rest"
	"github.com/svcmux/svcmux/rpc"
)

func setup(t *testing.T) (*rest.Client, *svcmux.Sink, *rpc.Handler) {
	t.Helper()
	specs := []svcmux.ServiceSpec{
		{Name: "core", Command: []string{"/nonexistent/svcmux/core"}},
		{Name: "web", Command: []string{"/nonexistent/svcmux/php"}},
	}
	s, err := svcmux.New(specs,
		svcmux.WithName("client-test"),
		svcmux.WithSink(svcmux.NewSink(svcmux.NewLog(0))),
		svcmux.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	h := rpc.NewHandler(s, nil)
	ts := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		ts.Close()
		s.Shutdown("test")
	})
	return rest.NewClient(nil, ts.URL+"/"), s.Sink(), h
}

func TestClientStatus(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, "client-test", info.Name)
	require.Equal(t, 2, info.Services)

	names, err := c.Services(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"core", "web"}, names)

	svc, err := c.GetService(ctx, "web")
	require.NoError(t, err)
	require.Equal(t, "web", svc.Name)
	require.True(t, svc.Failed())
	require.Contains(t, svc.Status, "Failed to start")

	_, err = c.GetService(ctx, "nosuch")
	var re *rest.Error
	require.True(t, errors.As(err, &re))
	require.Equal(t, http.StatusNotFound, re.Code)
	require.Equal(t, "Service not found", re.Message)
}

func TestClientLog(t *testing.T) {
	c, sink, _ := setup(t)
	ctx := context.Background()

	sink.Line("core", "one")
	sink.Line("web", "two")

	all, err := c.GetLog(ctx, "")
	require.NoError(t, err)
	require.Len(t, all.Records, 2)
	require.NotEmpty(t, all.Etag())

	web, err := c.GetLog(ctx, "web")
	require.NoError(t, err)
	require.Len(t, web.Records, 1)
	require.Equal(t, "two", web.Records[0].Text)

	go func() {
		time.Sleep(100 * time.Millisecond)
		sink.Line("core", "three")
	}()
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	next, err := c.WatchLog(wctx, "", all)
	require.NoError(t, err)
	require.NotEqual(t, all.Etag(), next.Etag())
	require.Len(t, next.Records, 3)
	require.Equal(t, "three", next.Records[2].Text)
}

func TestClientWatchCanceled(t *testing.T) {
	c, _, _ := setup(t)

	all, err := c.GetLog(context.Background(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = c.WatchLog(ctx, "", all)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientStream(t *testing.T) {
	c, sink, h := setup(t)
	sink.Line("core", "before")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan svcmux.LogRecord, 10)
	errc := make(chan error, 1)
	go func() {
		errc <- c.StreamLog(ctx, 0, func(rec svcmux.LogRecord) error {
			got <- rec
			return nil
		})
	}()

	rec := <-got
	require.Equal(t, "before", rec.Text)

	sink.Line("web", "after")
	rec = <-got
	require.Equal(t, "after", rec.Text)
	require.Equal(t, "web", rec.Service)

	// Resuming after the last seen record skips what was already read.
	resumed := make(chan svcmux.LogRecord, 10)
	rctx, rcancel := context.WithCancel(ctx)
	rerr := make(chan error, 1)
	go func() {
		rerr <- c.StreamLog(rctx, rec.Id, func(r svcmux.LogRecord) error {
			resumed <- r
			return nil
		})
	}()
	sink.Line("core", "later")
	require.Equal(t, "later", (<-resumed).Text)
	rcancel()
	require.NoError(t, <-rerr)

	h.Close()
	require.NoError(t, <-errc)
}

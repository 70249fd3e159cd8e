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

// Package rest is a client for the svcmux status API.
package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/svcmux/svcmux"
)

// LogInfo is a snapshot of a log, along with the Etag it was served with.
type LogInfo struct {
	name    string
	etag    string
	Records []svcmux.LogRecord
}

// Etag identifies this version of the log.
func (li *LogInfo) Etag() string {
	return li.etag
}

type Client struct {
	base   string // URI to root of tree on server
	client *http.Client
	dialer *websocket.Dialer

	// Cached data
	logs map[string]*LogInfo
	lock sync.Mutex
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/services"
	}
	return c.base + "/services/" + url.PathEscape(name)
}

func (c *Client) logURL(name string) string {
	if name == "" {
		return c.base + "/log"
	}
	return c.url(name) + "/log"
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		re := &Error{}
		if json.NewDecoder(res.Body).Decode(re) != nil || re.Message == "" {
			re.Message = res.Status
		}
		re.Code = res.StatusCode
		return "", re
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

// Info describes the supervisor.
func (c *Client) Info(ctx context.Context) (*SupervisorInfo, error) {
	v := &SupervisorInfo{}
	if _, e := c.poll(ctx, c.base+"/", "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// Services returns the names of the services, in startup order.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	v := []string{}
	if _, e := c.poll(ctx, c.url(""), "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) GetService(ctx context.Context, name string) (*ServiceInfo, error) {
	v := &ServiceInfo{}
	if _, e := c.poll(ctx, c.url(name), "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, name string, secs int, last *LogInfo) (*LogInfo, error) {

	v := &LogInfo{name: name}

	c.lock.Lock()
	cached, ok := c.logs[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		// We already have something newer than the caller.
		return cached, nil
	} else {
		otag = last.etag
	}

	etag, e := c.poll(ctx, c.logURL(name), otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		delete(c.logs, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.logs[name] = v
	c.lock.Unlock()

	return v, nil
}

// GetLog returns the log for the named service, or the combined log if
// name is empty.
func (c *Client) GetLog(ctx context.Context, name string) (*LogInfo, error) {
	return c.pollLog(ctx, name, 0, nil)
}

// WatchLog waits for the log to move on from last, and returns the new
// version.  If nothing changed before the server gave up, last is
// returned.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {

	// Let the poll wait for up to 300 secs (5 minutes).
	return c.pollLog(ctx, name, MaxPollTime, last)
}

// StreamLog calls fn with every log record newer than after, as the
// records are written, until ctx is done, the server goes away, or fn
// returns an error.  A stream ended by ctx or by the server returns nil.
func (c *Client) StreamLog(ctx context.Context, after int64, fn func(svcmux.LogRecord) error) error {
	u := c.base + "/log/stream?after=" + strconv.FormatInt(after, 10)
	switch {
	case strings.HasPrefix(u, "https:"):
		u = "wss:" + strings.TrimPrefix(u, "https:")
	case strings.HasPrefix(u, "http:"):
		u = "ws:" + strings.TrimPrefix(u, "http:")
	}

	conn, _, e := c.dialer.DialContext(ctx, u, nil)
	if e != nil {
		return e
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		var rec svcmux.LogRecord
		if e := conn.ReadJSON(&rec); e != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(e, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return e
		}
		if e := fn(rec); e != nil {
			return e
		}
	}
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	d := &websocket.Dialer{
		Proxy:            t.Proxy,
		TLSClientConfig:  t.TLSClientConfig,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}
	c := &Client{
		base:   strings.TrimSuffix(baseURI, "/"),
		client: &http.Client{Transport: t},
		dialer: d,
		logs:   make(map[string]*LogInfo),
	}
	return c
}

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

// Package rpc serves a read-only view of a running Supervisor over HTTP.
// It can list services and report their state, return the combined log
// (optionally waiting for it to change), stream the log over a websocket,
// and expose the supervisor's metrics.  Nothing here can change the state
// of a service.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/svcmux/svcmux"
	"github.com/svcmux/svcmux/rest"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	streamWait   = time.Second
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s     *svcmux.Supervisor
	r     *mux.Router
	quit  chan struct{}
	once  sync.Once
	conns sync.WaitGroup
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func writeError(w http.ResponseWriter, e *rest.Error) {
	b, _ := json.Marshal(e)
	w.Header().Set("Content-Type", mimeJson)
	w.WriteHeader(e.Code)
	w.Write(b)
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	tok := h.s.Token()
	info := &rest.SupervisorInfo{
		Name:         h.s.Name(),
		CreateTime:   h.s.CreateTime(),
		Services:     len(h.s.Specs()),
		ShuttingDown: tok.Fired(),
		Reason:       tok.Reason(),
	}
	h.writeJson(w, info)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	svcs := h.s.Services()
	l := make([]string, 0, len(svcs))
	for _, svc := range svcs {
		l = append(l, svc.Name)
	}
	h.writeJson(w, l)
}

func (h *Handler) findService(name string) (svcmux.ServiceStatus, *rest.Error) {
	st, e := h.s.Service(name)
	if e != nil {
		return st, &rest.Error{Code: http.StatusNotFound, Message: "Service not found"}
	}
	return st, nil
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]
	if st, e := h.findService(name); e != nil {
		writeError(w, e)
	} else {
		h.writeJson(w, rest.NewServiceInfo(st))
	}
}

// pollTime returns how long the client is willing to wait for a change.
func pollTime(r *http.Request) time.Duration {
	secs, e := strconv.Atoi(r.Header.Get(rest.PollTimeHeader))
	if e != nil || secs <= 0 {
		return 0
	}
	if secs > rest.MaxPollTime {
		secs = rest.MaxPollTime
	}
	return time.Duration(secs) * time.Second
}

func parseEtag(s string) (int64, bool) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	id, e := strconv.ParseInt(s, 10, 64)
	return id, e == nil
}

// serveLog answers a log request for one service, or all of them if
// service is empty.  A request carrying the current Etag gets 304, after
// waiting up to the poll time for something new to arrive.
func (h *Handler) serveLog(w http.ResponseWriter, r *http.Request, service string) {
	log := h.s.Sink().Log()
	if log == nil {
		writeError(w, &rest.Error{Code: http.StatusNotFound, Message: "No log"})
		return
	}
	last, conditional := parseEtag(r.Header.Get("If-None-Match"))
	if conditional {
		if wait := pollTime(r); wait > 0 {
			waitLog(r.Context(), log, last, wait)
		}
	} else {
		last = 0
	}
	recs, id := log.GetRecords(service, last)
	w.Header().Set("Etag", strconv.FormatInt(id, 10))
	if conditional && id == last {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if recs == nil {
		recs = []svcmux.LogRecord{}
	}
	h.writeJson(w, recs)
}

// waitLog waits for log to move on from last, for at most wait, or until
// ctx is done.  Log.Watch cannot be interrupted, so it is called in short
// slices.
func waitLog(ctx context.Context, log *svcmux.Log, last int64, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for ctx.Err() == nil {
		left := time.Until(deadline)
		if left <= 0 {
			return
		}
		if left > streamWait {
			left = streamWait
		}
		if log.Watch(last, left) != last {
			return
		}
	}
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	h.serveLog(w, r, "")
}

func (h *Handler) getServiceLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]
	if _, e := h.findService(name); e != nil {
		writeError(w, e)
		return
	}
	h.serveLog(w, r, name)
}

// streamLog pushes every new log record to a websocket client, one JSON
// object per message.  The "after" query parameter picks up where a
// previous stream left off.
func (h *Handler) streamLog(w http.ResponseWriter, r *http.Request) {
	log := h.s.Sink().Log()
	if log == nil {
		writeError(w, &rest.Error{Code: http.StatusNotFound, Message: "No log"})
		return
	}
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)

	conn, e := upgrader.Upgrade(w, r, nil)
	if e != nil {
		return
	}
	h.conns.Add(1)
	defer h.conns.Done()
	defer conn.Close()

	// The client never sends anything; reading is how we notice it has
	// gone away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, e := conn.NextReader(); e != nil {
				return
			}
		}
	}()

	var id int64
	for {
		var recs []svcmux.LogRecord
		recs, id = log.Since(after)
		for _, rec := range recs {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if e := conn.WriteJSON(rec); e != nil {
				return
			}
			after = rec.Id
		}
		select {
		case <-gone:
			return
		case <-h.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		default:
		}
		log.Watch(id, streamWait)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// Close ends every open log stream and waits for them to finish.
// http.Server.Shutdown does not track hijacked connections, so this must
// be called alongside it.
func (h *Handler) Close() {
	h.once.Do(func() {
		close(h.quit)
	})
	h.conns.Wait()
}

// NewHandler returns a handler for s.  If g is not nil, its metrics are
// served at /metrics.
func NewHandler(s *svcmux.Supervisor, g prometheus.Gatherer) *Handler {
	r := mux.NewRouter()
	h := &Handler{s: s, r: r, quit: make(chan struct{})}
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/services", h.listServices).Methods("GET")
	r.HandleFunc("/services/{service}", h.getService).Methods("GET")
	r.HandleFunc("/services/{service}/log", h.getServiceLog).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.HandleFunc("/log/stream", h.streamLog).Methods("GET")
	if g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return h
}

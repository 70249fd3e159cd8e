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
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id      int64     `json:"id,string"`
	Time    time.Time `json:"time"`
	Service string    `json:"service"`
	Text    string    `json:"text"`
}

// Log is a bounded ring of the most recent records written to a Sink.
// Its ID changes every time a record is appended, so it can be used as an
// Etag, and Watch lets a caller sleep until that happens.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

// Append adds one record.
func (log *Log) Append(service, text string) {
	log.lock()
	idx := log.numRecords % log.maxRecords
	log.id++
	log.records[idx] = LogRecord{
		Id:      log.id,
		Time:    time.Now(),
		Service: service,
		Text:    text,
	}
	// NB: numRecords may actually be more than maxRecords.
	// In that case, we've looped, but we use this really to
	// track the next index.
	log.numRecords++
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

func (log *Log) Clear() {
	log.lock()
	log.numRecords = 0
	// We presume that we cannot add new records more quickly than
	// once every nanosecond.
	log.id = time.Now().UnixNano()
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

// GetRecords returns the records that are stored, as well as an ID
// suitable for use as an Etag.  If last is the current ID, nothing has
// changed and nil is returned without copying anything.  A non-empty
// service limits the result to records from that service.  Note that IDs
// are not unique across different Log instances.
func (log *Log) GetRecords(service string, last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		r := log.records[index%log.maxRecords]
		index++
		if service != "" && r.Service != service {
			continue
		}
		recs = append(recs, r)
	}
	return recs, log.id
}

// Since returns the stored records with an ID greater than after, and the
// current ID.  Records that have already rotated out are simply missing.
func (log *Log) Since(after int64) ([]LogRecord, int64) {
	recs, id := log.GetRecords("", 0)
	for i, r := range recs {
		if r.Id > after {
			return recs[i:], id
		}
	}
	return nil, id
}

// Watch blocks until the ID moves away from last, or until expire has
// passed.  An expire of zero makes this a simple poll.  The (possibly
// unchanged) ID is returned.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	log.cvs[cv] = true
	for {
		if log.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log holding up to max records; zero means
// MaxLogRecords.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	log := &Log{
		maxRecords: max,
		records:    make([]LogRecord, max),
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
	return log
}

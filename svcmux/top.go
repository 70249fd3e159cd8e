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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/svcmux/svcmux/rest"
	"github.com/svcmux/svcmux/svcmux/util"
)

/*
   The screen looks like this:

    svcmux: stack                                   http://127.0.0.1:8321
    3 Services  2 Running  1 Failed
   __________________________________________________________________________
   SERVICE      STATE        PID       SINCE  STATUS
   messaging    failed         0     0:00:12  Failed to start: ...
   core         running    12345     0:00:12  Running
   web          running    12346     0:00:10  Running
   __________________________________________________________________________
   12:00:01.123 [core] Uvicorn running on http://127.0.0.1:8888
   ...
   [Q]uit
*/

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleTitle = tcell.StyleDefault.
			Foreground(tcell.ColorWhite).
			Background(tcell.ColorNavy)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

const (
	refreshInterval = time.Second
	logLines        = 200
)

// snapshot is everything one refresh fetched.
type snapshot struct {
	info  *rest.SupervisorInfo
	items []*rest.ServiceInfo
	log   *rest.LogInfo
	err   error
	when  time.Time
}

func fetch(ctx context.Context, c *rest.Client) *snapshot {
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	snap := &snapshot{when: time.Now()}
	if snap.info, snap.err = c.Info(ctx); snap.err != nil {
		return snap
	}
	names, err := c.Services(ctx)
	if err != nil {
		snap.err = err
		return snap
	}
	for _, name := range names {
		info, err := c.GetService(ctx, name)
		if err != nil {
			snap.err = err
			return snap
		}
		snap.items = append(snap.items, info)
	}
	util.SortServices(snap.items)
	snap.log, snap.err = c.GetLog(ctx, "")
	return snap
}

func styleFor(s *rest.ServiceInfo) tcell.Style {
	switch {
	case s.Failed():
		return StyleError
	case s.State == "running":
		return StyleGood
	case s.Running():
		return StyleWarn
	}
	return StyleNormal
}

type topScreen struct {
	screen tcell.Screen
	addr   string
	snap   *snapshot
}

func (t *topScreen) puts(x, y int, style tcell.Style, s string) {
	w, _ := t.screen.Size()
	for _, r := range s {
		if x >= w {
			return
		}
		t.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func (t *topScreen) fill(y int, style tcell.Style, r rune) {
	w, _ := t.screen.Size()
	for x := 0; x < w; x++ {
		t.screen.SetContent(x, y, r, nil, style)
	}
}

func (t *topScreen) draw() {
	t.screen.Clear()
	w, h := t.screen.Size()
	snap := t.snap

	t.fill(0, StyleTitle, ' ')
	title := "svcmux"
	if snap != nil && snap.info != nil {
		title += ": " + snap.info.Name
		if snap.info.ShuttingDown {
			title += " (shutting down)"
		}
	}
	t.puts(1, 0, StyleTitle, title)
	t.puts(w-len(t.addr)-1, 0, StyleTitle, t.addr)

	y := 1
	if snap == nil {
		t.puts(1, y, StyleNormal, "Connecting...")
	} else if snap.err != nil {
		t.puts(1, y, StyleError, fmt.Sprintf("Error: %v", snap.err))
	} else {
		nrunning, nfailed := 0, 0
		for _, s := range snap.items {
			if s.Running() {
				nrunning++
			}
			if s.Failed() {
				nfailed++
			}
		}
		t.puts(1, y, StyleNormal, fmt.Sprintf("%d Services  %d Running  %d Failed",
			len(snap.items), nrunning, nfailed))
	}
	y++
	t.fill(y, StyleNormal, '_')
	y++
	t.puts(1, y, StyleNormal, fmt.Sprintf("%-12s %-20s %7s %11s  %s",
		"SERVICE", "STATE", "PID", "SINCE", "STATUS"))
	y++

	if snap != nil {
		for _, s := range snap.items {
			if y >= h-2 {
				break
			}
			t.puts(1, y, styleFor(s), fmt.Sprintf("%-12s %-20s %7d %11s  %s",
				s.Name, util.Status(s), s.Pid,
				util.FormatDuration(util.Since(s, snap.when)), s.Status))
			y++
		}
	}
	t.fill(y, StyleNormal, '_')
	y++

	// The tail of the log fills whatever room is left.
	if snap != nil && snap.log != nil {
		room := h - 1 - y
		recs := snap.log.Records
		if room < 0 {
			room = 0
		}
		if len(recs) > room {
			recs = recs[len(recs)-room:]
		}
		for _, r := range recs {
			t.puts(1, y, StyleNormal, fmt.Sprintf("%s [%s] %s",
				r.Time.Format("15:04:05.000"), r.Service, r.Text))
			y++
		}
	}

	t.fill(h-1, StyleTitle, ' ')
	t.puts(1, h-1, StyleTitle, "[Q]uit")
	t.screen.Show()
}

func doTop(ctx context.Context, c *rest.Client, addr string) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.SetStyle(StyleNormal)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Refreshes arrive as interrupt events, so that all drawing happens
	// on this goroutine.
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			snap := fetch(ctx, c)
			if ctx.Err() != nil {
				return
			}
			screen.PostEvent(tcell.NewEventInterrupt(snap))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	go func() {
		<-ctx.Done()
		screen.PostEvent(tcell.NewEventInterrupt(nil))
	}()

	t := &topScreen{screen: screen, addr: addr}
	t.draw()
	for {
		switch ev := screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return nil
			case tcell.KeyRune:
				switch ev.Rune() {
				case 'q', 'Q':
					return nil
				}
			}
		case *tcell.EventResize:
			screen.Sync()
			t.draw()
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
			if snap, ok := ev.Data().(*snapshot); ok {
				t.snap = snap
				t.draw()
			}
		}
	}
}

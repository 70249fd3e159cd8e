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
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestChecklist(t *testing.T) {
	Convey("Given a checklist", t, func() {
		dir := t.TempDir()
		present := filepath.Join(dir, "server.py")
		So(os.WriteFile(present, []byte("#"), 0o644), ShouldBeNil)

		look := func(name string) (string, error) {
			if name == "missing-runtime" {
				return "", errors.New("not found")
			}
			return "/usr/bin/" + name, nil
		}
		ctx := context.Background()

		Convey("Everything present is ok", func() {
			cl := &Checklist{
				Specs: []ServiceSpec{
					{Name: "core", Command: []string{"python3"}, Directory: dir},
				},
				Files:    []string{present},
				lookPath: look,
			}
			ok, issues, warnings := cl.Check(ctx)
			So(ok, ShouldBeTrue)
			So(issues, ShouldBeEmpty)
			So(warnings, ShouldBeEmpty)
		})

		Convey("Each problem is its own issue", func() {
			cl := &Checklist{
				Specs: []ServiceSpec{
					{Name: "core", Command: []string{"python3"}, Directory: dir},
					{Name: "bot", Command: []string{"missing-runtime"}},
					{Name: "web", Command: []string{"php"},
						Directory: filepath.Join(dir, "nope")},
				},
				Files:    []string{present, filepath.Join(dir, "absent.py")},
				lookPath: look,
			}
			ok, issues, _ := cl.Check(ctx)
			So(ok, ShouldBeFalse)
			So(len(issues), ShouldEqual, 3)
		})

		Convey("A missing env file is only a warning", func() {
			cl := &Checklist{
				EnvFile:  filepath.Join(dir, ".env"),
				lookPath: look,
			}
			ok, issues, warnings := cl.Check(ctx)
			So(ok, ShouldBeTrue)
			So(issues, ShouldBeEmpty)
			So(len(warnings), ShouldEqual, 1)
		})

		Convey("NewChecklist resolves config paths", func() {
			c := DefaultConfig(dir)
			cl := NewChecklist(c, c.Specs(Selection{RequiredOnly: true}))
			So(cl.Files[0], ShouldEqual, filepath.Join(dir, "core/env/bin/python3"))
			So(cl.EnvFile, ShouldEqual, filepath.Join(dir, ".env"))
			So(len(cl.Specs), ShouldEqual, 1)
		})
	})
}

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

package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	ctx := WithService(context.Background(), "core")
	logger.InfoContext(ctx, "hello", "pid", 42)
	line := buf.String()
	require.Contains(t, line, "level=INFO")
	require.Contains(t, line, "msg=hello")
	require.Contains(t, line, "pid=42")
	require.Contains(t, line, "service=core")

	buf.Reset()
	logger.DebugContext(ctx, "hidden")
	require.Empty(t, buf.String())
}

func TestContextAttrsDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)

	base := ContextAttrs(context.Background())
	a := WithService(base, "a")
	b := WithService(base, "b")
	logger.DebugContext(a, "one")
	logger.DebugContext(b, "two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "service=a")
	require.NotContains(t, lines[0], "service=b")
	require.Contains(t, lines[1], "service=b")
	require.NotContains(t, lines[1], "service=a")
}

func TestWithAttrsKeepsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false).With("supervisor", "test")

	logger.InfoContext(WithService(context.Background(), "web"), "up")
	require.Contains(t, buf.String(), "supervisor=test")
	require.Contains(t, buf.String(), "service=web")
}

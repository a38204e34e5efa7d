/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/scan"
)

func session(records ...models.PortRecord) *scan.Session {
	ch := make(chan models.PortRecord, len(records))
	for _, r := range records {
		ch <- r
	}

	close(ch)

	return &scan.Session{ID: "run-1", Host: "example.test", Address: "192.0.2.1", Records: ch}
}

func sampleRecords() []models.PortRecord {
	inspected := models.InspectionSuccess("COMMAND PID USER\nsshd 42 root\n")
	failed := models.InspectionCommandFailed(1, "lsof: permission denied")

	return []models.PortRecord{
		{Port: 22, Status: models.StatusOpen, Attempts: 1, RespTime: 1500 * time.Microsecond, Inspection: &inspected},
		{Port: 23, Status: models.StatusClosed, Attempts: 2, Error: errors.New("connection refused")},
		{Port: 80, Status: models.StatusTimedOut, Attempts: 2, RespTime: time.Second},
		{Port: 443, Status: models.StatusOpen, Attempts: 2, Inspection: &failed},
	}
}

var header = &Header{ScanID: "run-1", Host: "example.test", Address: "192.0.2.1", Workers: 4, Timeout: 2 * time.Second, Retries: 2}

func render(t *testing.T, opts Options, records ...models.PortRecord) (string, *scan.Summary) {
	t.Helper()

	var buf bytes.Buffer

	r, err := New(&buf, opts)
	require.NoError(t, err)

	summary, err := Render(r, session(records...), header, opts.ShowAll)
	require.NoError(t, err)

	return buf.String(), summary
}

func TestRender_TableOpenOnly(t *testing.T) {
	out, summary := render(t, Options{Format: FormatTable, Color: models.ColorNever}, sampleRecords()...)

	assert.Contains(t, out, "Host   : example.test (192.0.2.1)")
	assert.Contains(t, out, "Workers: 4")
	assert.Contains(t, out, "│    22 │   open    │")
	assert.Contains(t, out, "│   443 │   open    │")
	assert.NotContains(t, out, "│    23 │")
	assert.NotContains(t, out, "│    80 │")
	assert.Contains(t, out, "sshd 42 root")
	assert.Contains(t, out, "inspection failed: exit code 1: lsof: permission denied")
	assert.Contains(t, out, tableBottom)
	assert.NotContains(t, out, "\x1b[", "never mode must not emit escapes")

	assert.Equal(t, 4, summary.Ports)
	assert.Equal(t, 2, summary.Open)
	assert.Equal(t, 1, summary.Closed)
	assert.Equal(t, 1, summary.TimedOut)
	assert.Equal(t, "run-1", summary.ScanID)
}

func TestRender_TableShowAll(t *testing.T) {
	out, _ := render(t, Options{Format: FormatTable, Color: models.ColorNever, ShowAll: true}, sampleRecords()...)

	assert.Contains(t, out, "│    23 │  closed   │")
	assert.Contains(t, out, "│    80 │ timed_out │")
	assert.Contains(t, out, "4 ports scanned")
}

func TestRender_Plain(t *testing.T) {
	out, _ := render(t, Options{Format: FormatPlain, Color: models.ColorNever, ShowAll: true}, sampleRecords()...)

	assert.Contains(t, out, "    22 | open\n")
	assert.Contains(t, out, "    23 | closed\n")
	assert.Contains(t, out, "    80 | timed_out\n")
	assert.NotContains(t, out, "┌")
}

func TestRender_AlwaysColors(t *testing.T) {
	out, _ := render(t, Options{Format: FormatPlain, Color: models.ColorAlways}, sampleRecords()...)

	assert.Contains(t, out, "\x1b[")
}

func TestRender_AutoColorOnBuffer(t *testing.T) {
	out, _ := render(t, Options{Format: FormatTable, Color: models.ColorAuto}, sampleRecords()...)

	assert.NotContains(t, out, "\x1b[")
}

func TestRender_JSON(t *testing.T) {
	out, _ := render(t, Options{Format: FormatJSON, ShowAll: true}, sampleRecords()...)

	var lines []map[string]any

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))

		lines = append(lines, m)
	}

	require.Len(t, lines, 6)
	assert.Equal(t, "scan", lines[0]["type"])
	assert.InDelta(t, 2000, lines[0]["timeout_ms"], 0)

	assert.Equal(t, "port", lines[1]["type"])
	assert.InDelta(t, 22, lines[1]["port"], 0)
	assert.Equal(t, "open", lines[1]["status"])
	assert.InDelta(t, 1.5, lines[1]["rtt_ms"], 0.001)
	require.IsType(t, map[string]any{}, lines[1]["inspection"])
	assert.Equal(t, "success", lines[1]["inspection"].(map[string]any)["kind"])

	assert.Equal(t, "connection refused", lines[2]["error"])

	assert.Equal(t, "summary", lines[5]["type"])
	assert.InDelta(t, 2, lines[5]["open"], 0)
	assert.InDelta(t, 1, lines[5]["timed_out"], 0)
}

func TestRender_EmptyScan(t *testing.T) {
	out, summary := render(t, Options{Format: FormatTable, Color: models.ColorNever})

	assert.Zero(t, summary.Ports)
	assert.Contains(t, out, tableTop)
	assert.Contains(t, out, "0 ports scanned")
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Format: "xml"})
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "plain": FormatPlain, "verbose": FormatPlain, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestShouldColor(t *testing.T) {
	var buf bytes.Buffer

	assert.True(t, ShouldColor(models.ColorAlways, &buf))
	assert.False(t, ShouldColor(models.ColorNever, &buf))
	assert.False(t, ShouldColor(models.ColorAuto, &buf))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRender_WriteError(t *testing.T) {
	r, err := New(failingWriter{}, Options{Format: FormatPlain, Color: models.ColorNever})
	require.NoError(t, err)

	s := session(sampleRecords()...)

	_, err = Render(r, s, header, true)
	require.Error(t, err)
}

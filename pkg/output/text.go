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
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/scan"
)

const (
	portWidth   = 5
	statusWidth = 9
)

var (
	tableTop    = "┌" + strings.Repeat("─", portWidth+2) + "┬" + strings.Repeat("─", statusWidth+2) + "┐"
	tableSep    = "├" + strings.Repeat("─", portWidth+2) + "┼" + strings.Repeat("─", statusWidth+2) + "┤"
	tableBottom = "└" + strings.Repeat("─", portWidth+2) + "┴" + strings.Repeat("─", statusWidth+2) + "┘"
)

// tableRenderer draws a boxed two-column table row by row as records
// arrive, so nothing is buffered.
type tableRenderer struct {
	w   io.Writer
	pal *palette
}

func newTableRenderer(w io.Writer, pal *palette) *tableRenderer {
	return &tableRenderer{w: w, pal: pal}
}

func (t *tableRenderer) Header(h *Header) error {
	if err := writeRunInfo(t.w, t.pal, h); err != nil {
		return err
	}

	_, err := fmt.Fprintf(t.w, "%s\n│ %*s │ %s │\n%s\n",
		tableTop, portWidth, "Port", center("Status", statusWidth), tableSep)

	return err
}

func (t *tableRenderer) Record(rec *models.PortRecord) error {
	status := t.pal.status(rec.Status).Render(center(string(rec.Status), statusWidth))

	if _, err := fmt.Fprintf(t.w, "│ %*d │ %s │\n", portWidth, rec.Port, status); err != nil {
		return err
	}

	return writeInspection(t.w, t.pal, "│ "+strings.Repeat(" ", portWidth)+" ╰ ", rec.Inspection)
}

func (t *tableRenderer) Footer(s *scan.Summary) error {
	if _, err := fmt.Fprintln(t.w, tableBottom); err != nil {
		return err
	}

	return writeSummary(t.w, t.pal, s)
}

// plainRenderer prints one line per record with no box, which is easier to
// grep and copy.
type plainRenderer struct {
	w   io.Writer
	pal *palette
}

func newPlainRenderer(w io.Writer, pal *palette) *plainRenderer {
	return &plainRenderer{w: w, pal: pal}
}

func (p *plainRenderer) Header(h *Header) error {
	if err := writeRunInfo(p.w, p.pal, h); err != nil {
		return err
	}

	_, err := fmt.Fprintln(p.w, strings.Repeat("-", 16))

	return err
}

func (p *plainRenderer) Record(rec *models.PortRecord) error {
	if _, err := fmt.Fprintf(p.w, " %*d | %s\n", portWidth, rec.Port, p.pal.status(rec.Status).Render(string(rec.Status))); err != nil {
		return err
	}

	return writeInspection(p.w, p.pal, strings.Repeat(" ", portWidth+4), rec.Inspection)
}

func (p *plainRenderer) Footer(s *scan.Summary) error {
	return writeSummary(p.w, p.pal, s)
}

func writeRunInfo(w io.Writer, pal *palette, h *Header) error {
	host := h.Host
	if h.Address != "" && h.Address != h.Host {
		host = fmt.Sprintf("%s (%s)", h.Host, h.Address)
	}

	rows := [][2]string{
		{"Host   ", host},
		{"Workers", strconv.Itoa(h.Workers)},
		{"Timeout", h.Timeout.String()},
		{"Retries", strconv.Itoa(h.Retries)},
	}

	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s: %s\n", pal.label.Render(r[0]), r[1]); err != nil {
			return err
		}
	}

	return nil
}

func writeInspection(w io.Writer, pal *palette, prefix string, res *models.InspectionResult) error {
	if res == nil {
		return nil
	}

	var (
		text  string
		style lipgloss.Style
	)

	if failure := res.Failure(); failure != "" {
		text, style = "inspection failed: "+failure, pal.failure
	} else {
		text, style = res.Output, pal.detail
	}

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefix, style.Render(line)); err != nil {
			return err
		}
	}

	return nil
}

func writeSummary(w io.Writer, pal *palette, s *scan.Summary) error {
	_, err := fmt.Fprintf(w, "%d ports scanned in %s: %s, %s, %s\n",
		s.Ports,
		s.Elapsed.Round(time.Millisecond),
		pal.open.Render(fmt.Sprintf("%d open", s.Open)),
		pal.closed.Render(fmt.Sprintf("%d closed", s.Closed)),
		pal.timedOut.Render(fmt.Sprintf("%d timed out", s.TimedOut)))

	return err
}

func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}

	left := pad / 2

	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

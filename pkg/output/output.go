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

// Package output renders a scan's result stream for people and programs.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/scan"
)

type Format string

const (
	FormatTable Format = "table"
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
)

var ErrUnknownFormat = errors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatPlain, "verbose":
		return FormatPlain, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

type Options struct {
	Format  Format
	Color   models.ColorMode
	ShowAll bool
}

// Header describes the run before any record arrives.
type Header struct {
	ScanID  string
	Host    string
	Address string
	Workers int
	Timeout time.Duration
	Retries int
}

// Renderer writes one scan. Calls arrive in order: Header, any number of
// Record, then Footer.
type Renderer interface {
	Header(h *Header) error
	Record(rec *models.PortRecord) error
	Footer(s *scan.Summary) error
}

// New builds the renderer for opts writing to w.
func New(w io.Writer, opts Options) (Renderer, error) {
	switch opts.Format {
	case FormatTable, "":
		return newTableRenderer(w, newPalette(w, opts.Color)), nil
	case FormatPlain:
		return newPlainRenderer(w, newPalette(w, opts.Color)), nil
	case FormatJSON:
		return newJSONRenderer(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}

// ShouldColor resolves a color mode against the destination. Auto colors
// only when w is a terminal.
func ShouldColor(mode models.ColorMode, w io.Writer) bool {
	switch mode {
	case models.ColorAlways:
		return true
	case models.ColorNever:
		return false
	default:
		f, ok := w.(*os.File)
		if !ok {
			return false
		}

		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
}

// Render drains the session into r and returns the run summary. Records
// that are not open are counted but only written when showAll is set.
func Render(r Renderer, s *scan.Session, h *Header, showAll bool) (*scan.Summary, error) {
	if err := r.Header(h); err != nil {
		return nil, err
	}

	start := time.Now()
	summary := scan.NewSummary(s)

	var writeErr error

	for rec := range s.Records {
		summary.Add(&rec)

		if writeErr != nil || (!showAll && !rec.IsOpen()) {
			continue
		}

		writeErr = r.Record(&rec)
	}

	summary.Elapsed = time.Since(start)

	if writeErr != nil {
		return summary, writeErr
	}

	return summary, r.Footer(summary)
}

const (
	draculaGreen   = "#50FA7B"
	draculaRed     = "#FF5555"
	draculaYellow  = "#F1FA8C"
	draculaCyan    = "#8BE9FD"
	draculaComment = "#6272A4"
)

type palette struct {
	open, closed, timedOut, detail, failure, label lipgloss.Style
}

func newPalette(w io.Writer, mode models.ColorMode) *palette {
	r := lipgloss.NewRenderer(w)

	if ShouldColor(mode, w) {
		r.SetColorProfile(termenv.TrueColor)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return &palette{
		open:     r.NewStyle().Foreground(lipgloss.Color(draculaGreen)).Bold(true),
		closed:   r.NewStyle().Foreground(lipgloss.Color(draculaRed)),
		timedOut: r.NewStyle().Foreground(lipgloss.Color(draculaYellow)),
		detail:   r.NewStyle().Foreground(lipgloss.Color(draculaComment)),
		failure:  r.NewStyle().Foreground(lipgloss.Color(draculaRed)).Italic(true),
		label:    r.NewStyle().Foreground(lipgloss.Color(draculaCyan)),
	}
}

func (p *palette) status(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusOpen:
		return p.open
	case models.StatusTimedOut:
		return p.timedOut
	default:
		return p.closed
	}
}

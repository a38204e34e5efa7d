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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/portprobe/pkg/logger"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("1500ms") or a number of milliseconds.
type Duration time.Duration

var errInvalidDuration = errors.New("invalid duration")

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value * float64(time.Millisecond)))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ColorMode selects when the presentation layer colors its output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode accepts the mode names and their short aliases.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "auto", "":
		return ColorAuto, nil
	case "always", "a", "y", "yes":
		return ColorAlways, nil
	case "never", "n", "no":
		return ColorNever, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidColorMode, s)
	}
}

// InspectorKind selects the inspection backend.
type InspectorKind string

const (
	InspectorCommand InspectorKind = "command"
	InspectorNative  InspectorKind = "native"
)

const (
	DefaultHost    = "localhost"
	DefaultTimeout = 2000 * time.Millisecond
	DefaultRetries = 2
	AllPortsSpec   = "-"
)

var (
	ErrInvalidColorMode  = errors.New("invalid color mode")
	ErrInvalidScanConfig = errors.New("invalid scan configuration")
)

// ScanConfig is the normalized scan request. It is built once and treated
// as read-only while a scan runs.
type ScanConfig struct {
	Host      string         `json:"host"`
	Ports     []string       `json:"ports"`
	Timeout   Duration       `json:"timeout"`
	Retries   int            `json:"retries"`
	Workers   int            `json:"workers"`
	Inspect   bool           `json:"inspect"`
	Inspector InspectorKind  `json:"inspector"`
	ShowAll   bool           `json:"show_all"`
	Color     ColorMode      `json:"color"`
	Format    string         `json:"format"`
	Logging   *logger.Config `json:"logging"`
}

// DefaultScanConfig returns the request used when nothing is configured.
// Workers stays zero so the prober picks the number of available cores.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Host:      DefaultHost,
		Ports:     []string{AllPortsSpec},
		Timeout:   Duration(DefaultTimeout),
		Retries:   DefaultRetries,
		Inspector: InspectorCommand,
		Color:     ColorAuto,
		Format:    "table",
	}
}

// Validate implements config.Validator.
func (c *ScanConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidScanConfig)
	}

	if len(c.Ports) == 0 {
		return fmt.Errorf("%w: no port specification", ErrInvalidScanConfig)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidScanConfig)
	}

	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidScanConfig)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidScanConfig)
	}

	switch c.Inspector {
	case "", InspectorCommand, InspectorNative:
	default:
		return fmt.Errorf("%w: unknown inspector %q", ErrInvalidScanConfig, c.Inspector)
	}

	if _, err := ParseColorMode(string(c.Color)); err != nil {
		return err
	}

	switch c.Format {
	case "", "table", "plain", "json":
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidScanConfig, c.Format)
	}

	return nil
}

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

package logger

import (
	"io"

	"github.com/rs/zerolog"
)

type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// componentLogger adapts a zerolog.Logger to Logger.
type componentLogger struct {
	logger zerolog.Logger
}

// NewComponentLogger wraps l and tags every event with component.
func NewComponentLogger(l zerolog.Logger, component string) Logger {
	return &componentLogger{logger: l.With().Str("component", component).Logger()}
}

func (c *componentLogger) Trace() *zerolog.Event { return c.logger.Trace() }
func (c *componentLogger) Debug() *zerolog.Event { return c.logger.Debug() }
func (c *componentLogger) Info() *zerolog.Event  { return c.logger.Info() }
func (c *componentLogger) Warn() *zerolog.Event  { return c.logger.Warn() }
func (c *componentLogger) Error() *zerolog.Event { return c.logger.Error() }
func (c *componentLogger) With() zerolog.Context { return c.logger.With() }

func (c *componentLogger) WithComponent(component string) zerolog.Logger {
	return c.logger.With().Str("component", component).Logger()
}

func (c *componentLogger) SetLevel(level zerolog.Level) {
	c.logger = c.logger.Level(level)
}

func (c *componentLogger) SetDebug(debug bool) {
	if debug {
		c.SetLevel(zerolog.DebugLevel)
	} else {
		c.SetLevel(zerolog.InfoLevel)
	}
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return &componentLogger{logger: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

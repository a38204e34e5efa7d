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

package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
)

const pipeWaitDelay = 2 * time.Second

// CommandFunc builds the host command that lists listeners on port. A nil
// command means the platform has none.
type CommandFunc func(ctx context.Context, port models.Port) *exec.Cmd

// CommandInspector runs a host command per port. The number of processes
// alive at once is capped independently of the probe worker count.
type CommandInspector struct {
	command CommandFunc
	sem     *semaphore.Weighted
	logger  logger.Logger
}

var _ Inspector = (*CommandInspector)(nil)

type CommandOption func(*CommandInspector)

// WithCommand replaces the platform default command.
func WithCommand(fn CommandFunc) CommandOption {
	return func(c *CommandInspector) {
		c.command = fn
	}
}

// WithMaxProcesses caps concurrent inspection processes.
func WithMaxProcesses(n int) CommandOption {
	return func(c *CommandInspector) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewCommandInspector(log logger.Logger, opts ...CommandOption) *CommandInspector {
	c := &CommandInspector{
		command: defaultCommand,
		sem:     semaphore.NewWeighted(int64(runtime.NumCPU())),
		logger:  log,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Inspect runs the command bound to ctx, so cancelling ctx kills it.
func (c *CommandInspector) Inspect(ctx context.Context, port models.Port) models.InspectionResult {
	cmd := c.command(ctx, port)
	if cmd == nil {
		return models.InspectionExecutionError(ErrUnsupportedPlatform)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return models.InspectionExecutionError(err)
	}
	defer c.sem.Release(1)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Bounds how long Wait blocks on pipes held open by orphaned children
	// once the command itself has been killed.
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = pipeWaitDelay
	}

	c.logger.Debug().
		Uint16("port", uint16(port)).
		Str("command", cmd.String()).
		Msg("Running inspection command")

	err := cmd.Run()
	if err == nil {
		if !utf8.Valid(stdout.Bytes()) {
			return models.InspectionExecutionError(ErrUndecodableOutput)
		}

		return models.InspectionSuccess(strings.TrimRight(stdout.String(), "\n"))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.InspectionExecutionError(ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return models.InspectionExecutionError(fmt.Errorf("%w: %w", ErrLaunchFailed, err))
	}

	code := exitErr.ExitCode()
	if code < 0 {
		return models.InspectionExecutionError(fmt.Errorf("%w: %s", ErrTerminatedBySignal, exitErr))
	}

	if !utf8.Valid(stderr.Bytes()) {
		return models.InspectionExecutionError(ErrUndecodableOutput)
	}

	return models.InspectionCommandFailed(code, strings.TrimSpace(stderr.String()))
}

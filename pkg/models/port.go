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
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Port is a TCP port number. Zero is never a valid port.
type Port uint16

const (
	MinPort Port = 1
	MaxPort Port = 65535
)

func (p Port) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Status is the terminal classification of a probed port.
type Status string

const (
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusTimedOut Status = "timed_out"
)

// PortRecord is the outcome of probing a single port. A record is owned by
// exactly one probe until it is emitted on the result stream.
type PortRecord struct {
	Port       Port              `json:"port"`
	Status     Status            `json:"status"`
	Inspection *InspectionResult `json:"inspection,omitempty"`
	Attempts   int               `json:"attempts"`
	RespTime   time.Duration     `json:"resp_time"`
	Error      error             `json:"-"`
}

// NewPortRecord returns a pending record for port.
func NewPortRecord(port Port) PortRecord {
	return PortRecord{
		Port:   port,
		Status: StatusClosed,
	}
}

// IsOpen reports whether some attempt connected.
func (r *PortRecord) IsOpen() bool {
	return r.Status == StatusOpen
}

// InspectionKind identifies which outcome an InspectionResult carries.
type InspectionKind string

const (
	InspectionKindSuccess        InspectionKind = "success"
	InspectionKindCommandFailed  InspectionKind = "command_failed"
	InspectionKindExecutionError InspectionKind = "execution_error"
)

// InspectionResult holds listener details gathered for an open port.
// Output is an opaque payload and is never parsed by the prober.
type InspectionResult struct {
	Kind     InspectionKind `json:"kind"`
	Output   string         `json:"output,omitempty"`
	ExitCode int            `json:"exit_code,omitempty"`
	Stderr   string         `json:"stderr,omitempty"`
	Err      error          `json:"-"`
}

func InspectionSuccess(output string) InspectionResult {
	return InspectionResult{Kind: InspectionKindSuccess, Output: output}
}

func InspectionCommandFailed(exitCode int, stderr string) InspectionResult {
	return InspectionResult{Kind: InspectionKindCommandFailed, ExitCode: exitCode, Stderr: stderr}
}

func InspectionExecutionError(err error) InspectionResult {
	return InspectionResult{Kind: InspectionKindExecutionError, Err: err}
}

var errNoInspectionError = errors.New("inspection failed without an error")

// Failure returns a printable description for non-success results and an
// empty string otherwise.
func (r *InspectionResult) Failure() string {
	switch r.Kind {
	case InspectionKindSuccess:
		return ""
	case InspectionKindCommandFailed:
		return fmt.Sprintf("exit code %d: %s", r.ExitCode, r.Stderr)
	case InspectionKindExecutionError:
		if r.Err == nil {
			return errNoInspectionError.Error()
		}

		return r.Err.Error()
	default:
		return fmt.Sprintf("unknown inspection result %q", r.Kind)
	}
}

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

//go:generate mockgen -destination=mock_inspector.go -package=inspect github.com/carverauto/portprobe/pkg/inspect Inspector

// Package inspect looks up the process listening on an open TCP port.
package inspect

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
)

var (
	ErrUnsupportedPlatform = errors.New("port inspection is not supported on this platform")
	ErrUndecodableOutput   = errors.New("inspection output is not valid UTF-8")
	ErrTerminatedBySignal  = errors.New("inspection command terminated by signal")
	ErrLaunchFailed        = errors.New("failed to launch inspection command")
	ErrUnknownInspector    = errors.New("unknown inspector")
)

// Inspector returns listener details for a port. Implementations report
// failures through the result, never by panicking or blocking past ctx.
type Inspector interface {
	Inspect(ctx context.Context, port models.Port) models.InspectionResult
}

// New returns the inspector selected by kind.
func New(kind models.InspectorKind, log logger.Logger) (Inspector, error) {
	switch kind {
	case models.InspectorCommand, "":
		return NewCommandInspector(log), nil
	case models.InspectorNative:
		return NewNativeInspector(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInspector, kind)
	}
}

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

package lifecycle

import (
	"context"
	"errors"

	"github.com/carverauto/portprobe/pkg/logger"
)

// CreateComponentLogger builds a logger from config and tags it with
// component. A nil config falls back to logger.DefaultConfig.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	zl, err := logger.New(ctx, config)
	if err != nil {
		return nil, err
	}

	return logger.NewComponentLogger(zl, component), nil
}

// StartTelemetry turns on OTLP metrics and tracing when the logging config
// enables OTel. It is a no-op otherwise.
func StartTelemetry(ctx context.Context, config *logger.Config, log logger.Logger) error {
	if config == nil || !config.OTel.Enabled {
		return nil
	}

	if _, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{OTel: &config.OTel}); err != nil &&
		!errors.Is(err, logger.ErrOTelMetricsDisabled) {
		return err
	}

	if _, err := logger.InitializeTracing(ctx, &config.OTel); err != nil &&
		!errors.Is(err, logger.ErrOTelTracingDisabled) {
		return err
	}

	log.Debug().Str("endpoint", config.OTel.Endpoint).Msg("OTel export enabled")

	return nil
}

// ShutdownLogger flushes any pending OTel logs, metrics and spans.
func ShutdownLogger(ctx context.Context) error {
	return logger.Shutdown(ctx)
}

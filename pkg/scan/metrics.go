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

package scan

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/portprobe/pkg/models"
)

const instrumentationName = "github.com/carverauto/portprobe/pkg/scan"

// probeMetrics records through the global MeterProvider, which is a no-op
// until logger.InitializeMetrics installs an exporter.
type probeMetrics struct {
	attempts metric.Int64Counter
	ports    metric.Int64Counter
	connect  metric.Float64Histogram
}

func newProbeMetrics() (*probeMetrics, error) {
	meter := otel.Meter(instrumentationName)

	attempts, err := meter.Int64Counter("portprobe.probe.attempts",
		metric.WithDescription("Connect attempts by outcome"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}

	ports, err := meter.Int64Counter("portprobe.ports",
		metric.WithDescription("Probed ports by terminal status"),
		metric.WithUnit("{port}"))
	if err != nil {
		return nil, fmt.Errorf("creating ports counter: %w", err)
	}

	connect, err := meter.Float64Histogram("portprobe.connect.duration",
		metric.WithDescription("Duration of connect attempts"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating connect histogram: %w", err)
	}

	return &probeMetrics{attempts: attempts, ports: ports, connect: connect}, nil
}

func (m *probeMetrics) recordAttempt(ctx context.Context, outcome attemptOutcome, rtt time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))

	m.attempts.Add(ctx, 1, attrs)
	m.connect.Record(ctx, rtt.Seconds(), attrs)
}

func (m *probeMetrics) recordPort(ctx context.Context, status models.Status) {
	m.ports.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func newTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

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
	"iter"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/portprobe/pkg/inspect"
	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/portspec"
)

const (
	defaultTimeout = models.DefaultTimeout
	minAttempts    = 1
)

// Config is the read-only part of a scan request the prober needs.
type Config struct {
	Host    string
	Timeout time.Duration
	// Retries is the total number of connect attempts per port. Anything
	// below one still makes a single attempt.
	Retries int
	// Workers caps concurrent probes. Zero means one per CPU.
	Workers int
}

// TCPProber decides open/closed/timed_out for ports on a single host.
type TCPProber struct {
	host      string
	timeout   time.Duration
	attempts  int
	workers   int
	dialer    Dialer
	resolver  Resolver
	inspector inspect.Inspector
	logger    logger.Logger
	metrics   *probeMetrics
	tracer    trace.Tracer
}

var _ Scanner = (*TCPProber)(nil)

// Option customizes a TCPProber.
type Option func(*TCPProber)

// WithDialer replaces the net.Dialer used for connect attempts.
func WithDialer(d Dialer) Option {
	return func(p *TCPProber) {
		p.dialer = d
	}
}

// WithResolver replaces net.DefaultResolver for host lookups.
func WithResolver(r Resolver) Option {
	return func(p *TCPProber) {
		p.resolver = r
	}
}

// WithInspector enables inspection of open ports.
func WithInspector(i inspect.Inspector) Option {
	return func(p *TCPProber) {
		p.inspector = i
	}
}

// NewTCPProber validates cfg and fills in the default timeout and worker count.
func NewTCPProber(cfg Config, log logger.Logger, opts ...Option) (*TCPProber, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidConfig)
	}

	if cfg.Timeout < 0 || cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: negative timeout or worker count", ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	metrics, err := newProbeMetrics()
	if err != nil {
		return nil, err
	}

	p := &TCPProber{
		host:     cfg.Host,
		timeout:  timeout,
		attempts: max(cfg.Retries, minAttempts),
		workers:  workers,
		dialer:   &net.Dialer{},
		resolver: net.DefaultResolver,
		logger:   log,
		metrics:  metrics,
		tracer:   newTracer(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Workers returns the effective concurrency cap.
func (p *TCPProber) Workers() int {
	return p.workers
}

// Session is one running scan.
type Session struct {
	ID      string
	Host    string
	Address string
	Records <-chan models.PortRecord
}

// Scan implements Scanner.
func (p *TCPProber) Scan(ctx context.Context, ports iter.Seq[models.Port]) (<-chan models.PortRecord, error) {
	s, err := p.Start(ctx, ports)
	if err != nil {
		return nil, err
	}

	return s.Records, nil
}

// ScanSet scans every port of a normalized set.
func (p *TCPProber) ScanSet(ctx context.Context, set *portspec.Set) (<-chan models.PortRecord, error) {
	return p.Scan(ctx, set.All())
}

// Start resolves the host and begins probing. Resolution failures are
// returned before any probe is scheduled. The records channel is closed once
// every port has been probed or ctx is cancelled; after cancellation
// unfinished ports are not reported.
func (p *TCPProber) Start(ctx context.Context, ports iter.Seq[models.Port]) (*Session, error) {
	addr, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	records := make(chan models.PortRecord, p.workers)

	scanCtx, span := p.tracer.Start(ctx, "portprobe.scan", trace.WithAttributes(
		attribute.String("scan.id", id),
		attribute.String("net.peer.name", p.host),
		attribute.String("net.peer.ip", addr),
		attribute.Int("scan.workers", p.workers),
		attribute.Int("scan.attempts", p.attempts),
	))

	p.logger.Info().
		Str("scan_id", id).
		Str("host", p.host).
		Str("address", addr).
		Int("workers", p.workers).
		Dur("timeout", p.timeout).
		Int("attempts", p.attempts).
		Msg("Starting port scan")

	go func() {
		defer close(records)
		defer span.End()

		start := time.Now()
		scheduled := p.schedule(scanCtx, addr, ports, records)

		if err := scanCtx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			p.logger.Warn().Err(err).Str("scan_id", id).Msg("Port scan interrupted")

			return
		}

		span.SetAttributes(attribute.Int("scan.ports", scheduled))
		p.logger.Info().
			Str("scan_id", id).
			Int("ports", scheduled).
			Dur("elapsed", time.Since(start)).
			Msg("Port scan finished")
	}()

	return &Session{
		ID:      id,
		Host:    p.host,
		Address: addr,
		Records: records,
	}, nil
}

// schedule runs at most p.workers probes at once. errgroup's Go blocks while
// the limit is reached, so ports are pulled from the sequence lazily.
func (p *TCPProber) schedule(ctx context.Context, addr string, ports iter.Seq[models.Port], out chan<- models.PortRecord) int {
	var g errgroup.Group

	g.SetLimit(p.workers)

	scheduled := 0

	for port := range ports {
		if ctx.Err() != nil {
			break
		}

		scheduled++

		g.Go(func() error {
			rec := p.probe(ctx, addr, port)
			if ctx.Err() != nil {
				return nil
			}

			select {
			case out <- rec:
			case <-ctx.Done():
			}

			return nil
		})
	}

	_ = g.Wait()

	return scheduled
}

func (p *TCPProber) resolve(ctx context.Context) (string, error) {
	if ip := net.ParseIP(p.host); ip != nil {
		return ip.String(), nil
	}

	addrs, err := p.resolver.LookupHost(ctx, p.host)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrResolveHost, p.host, err)
	}

	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoAddress, p.host)
	}

	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}

	return addrs[0], nil
}

// Probe resolves the host and probes a single port. A probe cut short by ctx
// returns ctx's error instead of a record.
func (p *TCPProber) Probe(ctx context.Context, port models.Port) (models.PortRecord, error) {
	addr, err := p.resolve(ctx)
	if err != nil {
		return models.PortRecord{}, err
	}

	rec := p.probe(ctx, addr, port)
	if err := ctx.Err(); err != nil {
		return models.PortRecord{}, err
	}

	return rec, nil
}

type attemptOutcome string

const (
	outcomeOpen      attemptOutcome = "open"
	outcomeRefused   attemptOutcome = "refused"
	outcomeTimeout   attemptOutcome = "timeout"
	outcomeCancelled attemptOutcome = "cancelled"
)

// probe runs the retry loop for one port. Success ends the loop at once. A
// refused attempt leaves the status untouched and a timed out attempt marks
// it timed_out, so after the loop a port is open if any attempt connected,
// timed_out if any attempt timed out, and closed otherwise.
func (p *TCPProber) probe(ctx context.Context, addr string, port models.Port) models.PortRecord {
	rec := models.NewPortRecord(port)
	target := net.JoinHostPort(addr, port.String())

	for attempt := 1; attempt <= p.attempts; attempt++ {
		outcome, rtt, err := p.attempt(ctx, target)
		if outcome == outcomeCancelled {
			break
		}

		rec.Attempts = attempt
		rec.RespTime = rtt
		p.metrics.recordAttempt(ctx, outcome, rtt)

		p.logger.Trace().
			Uint16("port", uint16(port)).
			Int("attempt", attempt).
			Str("outcome", string(outcome)).
			Dur("rtt", rtt).
			Err(err).
			Msg("Connect attempt finished")

		switch outcome {
		case outcomeOpen:
			rec.Status = models.StatusOpen
			rec.Error = nil
		case outcomeTimeout:
			rec.Status = models.StatusTimedOut
			rec.Error = err
		case outcomeRefused:
			rec.Error = err
		}

		if rec.Status == models.StatusOpen {
			break
		}
	}

	if rec.IsOpen() && p.inspector != nil && ctx.Err() == nil {
		res := p.inspector.Inspect(ctx, port)
		rec.Inspection = &res

		if res.Kind != models.InspectionKindSuccess {
			p.logger.Debug().
				Uint16("port", uint16(port)).
				Str("kind", string(res.Kind)).
				Str("detail", res.Failure()).
				Msg("Inspection failed")
		}
	}

	p.metrics.recordPort(ctx, rec.Status)

	p.logger.Debug().
		Uint16("port", uint16(port)).
		Str("status", string(rec.Status)).
		Int("attempts", rec.Attempts).
		Msg("Port probed")

	return rec
}

type dialResult struct {
	conn net.Conn
	err  error
}

// attempt races one dial against the timeout. The losing dial is cancelled
// and awaited before attempt returns, so a worker slot never outlives its
// socket. A connection it still produces is closed and the result dropped.
func (p *TCPProber) attempt(ctx context.Context, target string) (attemptOutcome, time.Duration, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan dialResult, 1)
	start := time.Now()

	go func() {
		conn, err := p.dialer.DialContext(dialCtx, "tcp", target)
		done <- dialResult{conn: conn, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		rtt := time.Since(start)

		if r.err != nil {
			if ctx.Err() != nil {
				return outcomeCancelled, rtt, ctx.Err()
			}

			return outcomeRefused, rtt, r.err
		}

		if err := r.conn.Close(); err != nil {
			p.logger.Debug().Err(err).Str("target", target).Msg("Failed to close probe connection")
		}

		return outcomeOpen, rtt, nil
	case <-timer.C:
		cancel()
		discardLate(done)

		return outcomeTimeout, p.timeout, errAttemptTimedOut
	case <-ctx.Done():
		cancel()
		discardLate(done)

		return outcomeCancelled, time.Since(start), ctx.Err()
	}
}

func discardLate(done <-chan dialResult) {
	if r := <-done; r.conn != nil {
		_ = r.conn.Close()
	}
}

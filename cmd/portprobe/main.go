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

// Command portprobe reports which TCP ports on a host accept connections.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/carverauto/portprobe/pkg/config"
	"github.com/carverauto/portprobe/pkg/inspect"
	"github.com/carverauto/portprobe/pkg/lifecycle"
	"github.com/carverauto/portprobe/pkg/limits"
	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/output"
	"github.com/carverauto/portprobe/pkg/portspec"
	"github.com/carverauto/portprobe/pkg/scan"
	"github.com/carverauto/portprobe/pkg/version"
)

const shutdownTimeout = 5 * time.Second

var errInterrupted = errors.New("scan interrupted")

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}

	var uerr *usageError
	if errors.As(err, &uerr) {
		_, _ = fmt.Fprintf(os.Stderr, "portprobe: %v\n", err)
		os.Exit(2)
	}

	log.Fatalf("Fatal error: %v", err)
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if opts.version {
		_, err := fmt.Fprintln(stdout, version.GetFullVersion())
		return err
	}

	ctx, stop := lifecycle.SignalContext(context.Background())
	defer stop()

	cfg := models.DefaultScanConfig()
	cfg.Logging = logger.DefaultConfig()

	if err := config.NewConfig(nil).LoadAndValidate(ctx, opts.configPath, &cfg, opts.overrides...); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	// Malformed ports are rejected before any socket is opened.
	set, err := portspec.Parse(cfg.Ports...)
	if err != nil {
		return &usageError{err: err}
	}

	probeLogger, err := lifecycle.CreateComponentLogger(ctx, "portprobe", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := lifecycle.ShutdownLogger(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown logger: %v", err)
		}
	}()

	if err := lifecycle.StartTelemetry(ctx, cfg.Logging, probeLogger); err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	return scanAndRender(ctx, &cfg, set, probeLogger, stdout)
}

func scanAndRender(ctx context.Context, cfg *models.ScanConfig, set *portspec.Set, probeLog logger.Logger, stdout io.Writer) error {
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	workers = limits.CheckWorkers(workers, probeLog)

	var proberOpts []scan.Option

	if cfg.Inspect {
		ins, err := inspect.New(cfg.Inspector, probeLog)
		if err != nil {
			return err
		}

		proberOpts = append(proberOpts, scan.WithInspector(ins))
	}

	prober, err := scan.NewTCPProber(scan.Config{
		Host:    cfg.Host,
		Timeout: cfg.Timeout.Duration(),
		Retries: cfg.Retries,
		Workers: workers,
	}, probeLog, proberOpts...)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	renderer, err := output.New(stdout, output.Options{
		Format:  format,
		Color:   cfg.Color,
		ShowAll: cfg.ShowAll,
	})
	if err != nil {
		return err
	}

	session, err := prober.Start(ctx, set.All())
	if err != nil {
		return err
	}

	summary, err := output.Render(renderer, session, &output.Header{
		ScanID:  session.ID,
		Host:    session.Host,
		Address: session.Address,
		Workers: prober.Workers(),
		Timeout: cfg.Timeout.Duration(),
		Retries: cfg.Retries,
	}, cfg.ShowAll)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	probeLog.Info().
		Str("scan_id", summary.ScanID).
		Int("ports", summary.Ports).
		Int("open", summary.Open).
		Int("closed", summary.Closed).
		Int("timed_out", summary.TimedOut).
		Dur("elapsed", summary.Elapsed).
		Msg("Scan complete")

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}

	return nil
}

// Command wait-for-port blocks until every listed TCP port on a host accepts
// connections, for use in container entrypoints and CI scripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/carverauto/portprobe/pkg/lifecycle"
	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/portspec"
	"github.com/carverauto/portprobe/pkg/scan"
)

const shutdownTimeout = 5 * time.Second

var errUsage = errors.New("invalid usage")

func main() {
	err := run(os.Args[1:])
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}

	_, _ = fmt.Fprintf(os.Stderr, "wait-for-port: %v\n", err)

	if errors.Is(err, errUsage) {
		os.Exit(2)
	}

	os.Exit(1)
}

func run(args []string) error {
	fs := flag.NewFlagSet("wait-for-port", flag.ContinueOnError)

	var (
		host     = fs.String("host", "", "host to check")
		ports    = fs.String("port", "", "port or port list to check, e.g. 5432 or 80,443")
		attempts = fs.Int("attempts", 30, "number of rounds before failing (0 for infinite)")
		interval = fs.Duration("interval", 2*time.Second, "delay between rounds")
		timeout  = fs.Duration("timeout", 2*time.Second, "per-attempt dial timeout")
		quiet    = fs.Bool("quiet", false, "suppress progress logs")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}

		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if *host == "" || *ports == "" {
		return fmt.Errorf("%w: both --host and --port must be provided", errUsage)
	}

	set, err := portspec.Parse(*ports)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	ctx, stop := lifecycle.SignalContext(context.Background())
	defer stop()

	log, err := lifecycle.CreateComponentLogger(ctx, "wait-for-port", logger.DefaultConfig())
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := lifecycle.ShutdownLogger(shutdownCtx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "wait-for-port: failed to shutdown logger: %v\n", err)
		}
	}()

	prober, err := scan.NewTCPProber(scan.Config{
		Host:    *host,
		Timeout: *timeout,
		Retries: 1,
	}, log)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	return wait(ctx, prober, set, *attempts, *interval, *quiet)
}

// wait probes the ports still pending each round until none remain.
func wait(ctx context.Context, prober *scan.TCPProber, set *portspec.Set, maxAttempts int, interval time.Duration, quiet bool) error {
	pending := set.Slice()

	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		if !quiet {
			_, _ = fmt.Fprintf(os.Stderr, "wait-for-port: attempting %d port(s) (attempt %d)\n", len(pending), attempt)
		}

		var lastErr error

		still := pending[:0]

		for _, port := range pending {
			rec, err := prober.Probe(ctx, port)
			if err != nil {
				return err
			}

			if rec.Status != models.StatusOpen {
				still = append(still, port)
				lastErr = rec.Error
			}
		}

		pending = still

		if len(pending) == 0 {
			if !quiet {
				_, _ = fmt.Fprintln(os.Stderr, "wait-for-port: all ports are available")
			}

			return nil
		}

		if maxAttempts != 0 && attempt >= maxAttempts {
			return fmt.Errorf("timed out waiting for port %d after %d attempts: %w", pending[0], maxAttempts, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil
}

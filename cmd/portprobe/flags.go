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

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/carverauto/portprobe/pkg/config"
	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/output"
)

const usageText = `Usage: portprobe [flags] [host] [ports...]

Check which TCP ports on host accept connections.

Ports: 22  80,8080  1..1024  10-1024  -  (all ports, the default)
Host defaults to localhost.

Flags:
`

// usageError marks problems with the command line itself.
type usageError struct {
	err error
}

func (u *usageError) Error() string { return u.err.Error() }
func (u *usageError) Unwrap() error { return u.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

var errNonPositive = errors.New("must be greater than zero")

type cliOptions struct {
	configPath string
	logLevel   string
	version    bool
	overrides  []config.Override
}

type rawFlags struct {
	all       bool
	timeoutMS uint64
	retries   int
	threads   int
	inspect   bool
	inspector string
	color     string
	format    string
}

// parseFlags reads args the way users type them: flags may appear before,
// between or after the positional host and port arguments. Only flags the
// user actually set become overrides.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("portprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}

	var (
		raw  rawFlags
		opts cliOptions
	)

	fs.BoolVar(&raw.all, "a", false, "show closed and timed out ports")
	fs.BoolVar(&raw.all, "all", false, "alias for -a")
	fs.Uint64Var(&raw.timeoutMS, "t", uint64(models.DefaultTimeout.Milliseconds()), "connect timeout per attempt in milliseconds")
	fs.Uint64Var(&raw.timeoutMS, "timeout", uint64(models.DefaultTimeout.Milliseconds()), "alias for -t")
	fs.IntVar(&raw.retries, "r", models.DefaultRetries, "connect attempts per port")
	fs.IntVar(&raw.retries, "retries", models.DefaultRetries, "alias for -r")
	fs.IntVar(&raw.threads, "j", 0, "concurrent probes (default: number of CPU cores)")
	fs.IntVar(&raw.threads, "threads", 0, "alias for -j")
	fs.BoolVar(&raw.inspect, "i", false, "show the process listening on open ports")
	fs.BoolVar(&raw.inspect, "inspect", false, "alias for -i")
	fs.StringVar(&raw.inspector, "inspector", string(models.InspectorCommand), "inspection backend: command or native")
	fs.StringVar(&raw.color, "c", string(models.ColorAuto), "color output: auto, always or never")
	fs.StringVar(&raw.color, "color", string(models.ColorAuto), "alias for -c")
	fs.StringVar(&raw.format, "f", string(output.FormatTable), "output format: table, plain or json")
	fs.StringVar(&raw.format, "format", string(output.FormatTable), "alias for -f")
	fs.StringVar(&opts.configPath, "config", "", "path to a JSON scan configuration")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&opts.version, "version", false, "print the version and exit")

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}

		return nil, &usageError{err: err}
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	isSet := func(names ...string) bool {
		for _, n := range names {
			if set[n] {
				return true
			}
		}

		return false
	}

	if err := addOverrides(&opts, &raw, isSet); err != nil {
		return nil, err
	}

	if len(positional) > 0 {
		host := positional[0]
		opts.overrides = append(opts.overrides, func(c *models.ScanConfig) { c.Host = host })
	}

	if len(positional) > 1 {
		ports := positional[1:]
		opts.overrides = append(opts.overrides, func(c *models.ScanConfig) { c.Ports = ports })
	}

	return &opts, nil
}

func addOverrides(opts *cliOptions, raw *rawFlags, isSet func(...string) bool) error {
	add := func(o config.Override) { opts.overrides = append(opts.overrides, o) }

	if isSet("a", "all") {
		add(func(c *models.ScanConfig) { c.ShowAll = raw.all })
	}

	if isSet("t", "timeout") {
		if raw.timeoutMS == 0 {
			return usagef("-t: %w", errNonPositive)
		}

		timeout := models.Duration(time.Duration(raw.timeoutMS) * time.Millisecond)
		add(func(c *models.ScanConfig) { c.Timeout = timeout })
	}

	if isSet("r", "retries") {
		if raw.retries < 1 {
			return usagef("-r: %w", errNonPositive)
		}

		add(func(c *models.ScanConfig) { c.Retries = raw.retries })
	}

	if isSet("j", "threads") {
		if raw.threads < 1 {
			return usagef("-j: %w", errNonPositive)
		}

		add(func(c *models.ScanConfig) { c.Workers = raw.threads })
	}

	if isSet("i", "inspect") {
		add(func(c *models.ScanConfig) { c.Inspect = raw.inspect })
	}

	if isSet("inspector") {
		kind := models.InspectorKind(raw.inspector)
		if kind != models.InspectorCommand && kind != models.InspectorNative {
			return usagef("--inspector: unknown backend %q", raw.inspector)
		}

		add(func(c *models.ScanConfig) { c.Inspector = kind })
	}

	if isSet("c", "color") {
		mode, err := models.ParseColorMode(raw.color)
		if err != nil {
			return &usageError{err: err}
		}

		add(func(c *models.ScanConfig) { c.Color = mode })
	}

	if isSet("f", "format") {
		format, err := output.ParseFormat(raw.format)
		if err != nil {
			return &usageError{err: err}
		}

		add(func(c *models.ScanConfig) { c.Format = string(format) })
	}

	return nil
}

// parseInterleaved runs fs over args repeatedly, collecting one positional
// argument between passes. Everything after "--" is positional.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	args = rewriteOpenRanges(args)

	var positional []string

	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}

		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}

		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), nil
		}

		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// rewriteOpenRanges turns "-100" into "..100" so a range with an open lower
// bound is not mistaken for a flag.
func rewriteOpenRanges(args []string) []string {
	out := make([]string, len(args))

	for i, a := range args {
		if len(a) > 1 && a[0] == '-' && a[1] >= '0' && a[1] <= '9' {
			a = ".." + a[1:]
		}

		out[i] = a
	}

	return out
}

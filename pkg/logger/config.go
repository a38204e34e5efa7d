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
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultServiceName  = "portprobe"
	defaultLevel        = "warn"
	defaultOutput       = "stderr"
	defaultBatchTimeout = 5 * time.Second
)

// DefaultConfig reads the logging environment. PORTPROBE_-prefixed names win
// over the generic ones. Logs go to stderr unless told otherwise so stdout
// stays reserved for scan results.
func DefaultConfig() *Config {
	return &Config{
		Level:      envString(defaultLevel, "PORTPROBE_LOG_LEVEL", "LOG_LEVEL"),
		Debug:      envBool(false, "PORTPROBE_DEBUG", "DEBUG"),
		Output:     envString(defaultOutput, "PORTPROBE_LOG_OUTPUT", "LOG_OUTPUT"),
		TimeFormat: envString("", "PORTPROBE_LOG_TIME_FORMAT", "LOG_TIME_FORMAT"),
		OTel:       DefaultOTelConfig(),
	}
}

// DefaultOTelConfig reads the standard OTEL_* exporter variables. Export stays
// off unless OTEL_ENABLED is set.
func DefaultOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      envBool(false, "OTEL_ENABLED"),
		Endpoint:     envString("", "OTEL_EXPORTER_OTLP_ENDPOINT"),
		Headers:      parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		ServiceName:  envString(defaultServiceName, "OTEL_SERVICE_NAME"),
		BatchTimeout: Duration(envDuration(defaultBatchTimeout, "OTEL_EXPORTER_OTLP_TIMEOUT")),
		Insecure:     envBool(false, "OTEL_EXPORTER_OTLP_INSECURE"),
	}
}

// lookupEnv returns the first non-empty value among keys.
func lookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, true
		}
	}

	return "", false
}

func envString(def string, keys ...string) string {
	if v, ok := lookupEnv(keys...); ok {
		return v
	}

	return def
}

// envBool also accepts yes/on; anything unparsable counts as false.
func envBool(def bool, keys ...string) bool {
	v, ok := lookupEnv(keys...)
	if !ok {
		return def
	}

	switch strings.ToLower(v) {
	case "yes", "on":
		return true
	}

	b, err := strconv.ParseBool(v)

	return err == nil && b
}

// envDuration keeps def when the value does not parse.
func envDuration(def time.Duration, keys ...string) time.Duration {
	v, ok := lookupEnv(keys...)
	if !ok {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}

	return d
}

// parseHeaders reads comma separated key=value pairs. Pairs without '=' or
// with an empty key are skipped.
func parseHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	headers := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if k = strings.TrimSpace(k); !ok || k == "" {
			continue
		}

		headers[k] = strings.TrimSpace(v)
	}

	return headers
}

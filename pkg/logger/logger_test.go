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
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit(t *testing.T) {
	config := &Config{
		Level:  "debug",
		Debug:  true,
		Output: "stderr",
	}

	err := Init(context.Background(), config)
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	logger := GetLogger()
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %v", logger.GetLevel())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(context.Background(), &Config{Level: "loud"})
	if err == nil {
		t.Fatal("Expected error for unknown level")
	}
}

func TestNew_InvalidOutput(t *testing.T) {
	_, err := New(context.Background(), &Config{Output: "/dev/null"})
	if err == nil {
		t.Fatal("Expected error for unknown output")
	}
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)

	logger := GetLogger()
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level after SetDebug(true), got %v", logger.GetLevel())
	}

	SetDebug(false)

	logger = GetLogger()
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level after SetDebug(false), got %v", logger.GetLevel())
	}
}

func TestWithComponent(t *testing.T) {
	componentLogger := WithComponent("test-component")

	if componentLogger.GetLevel() == zerolog.Disabled {
		t.Error("Component logger should not be disabled")
	}
}

func TestComponentLogger_SetDebug(t *testing.T) {
	l := NewComponentLogger(zerolog.Nop().Level(zerolog.WarnLevel), "scan")

	l.SetDebug(true)

	if !l.Debug().Enabled() {
		t.Error("Debug events should be enabled after SetDebug(true)")
	}

	l.SetLevel(zerolog.ErrorLevel)

	if l.Warn().Enabled() {
		t.Error("Warn events should be disabled at error level")
	}
}

func TestNewTestLogger(t *testing.T) {
	l := NewTestLogger()

	if l.Error().Enabled() {
		t.Error("Test logger should discard every level")
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_OUTPUT", "")

	config := DefaultConfig()

	if config.Level != "warn" {
		t.Errorf("Expected default level warn, got %s", config.Level)
	}

	if config.Output != "stderr" {
		t.Errorf("Expected default output stderr, got %s", config.Output)
	}

	t.Setenv("LOG_LEVEL", "trace")
	t.Setenv("DEBUG", "yes")

	config = DefaultConfig()

	if config.Level != "trace" || !config.Debug {
		t.Errorf("Expected env overrides, got level=%s debug=%v", config.Level, config.Debug)
	}
}

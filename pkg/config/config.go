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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
)

const EnvPrefix = "PORTPROBE_"

var errInvalidConfigPtr = errors.New("config must be a non-nil pointer")

// ConfigLoader fills dst from one configuration source.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by configurations that can check themselves.
type Validator interface {
	Validate() error
}

// Override applies a value that outranks every loader, such as a flag the
// user set explicitly.
type Override func(*models.ScanConfig)

// Config holds the configuration loading dependencies.
type Config struct {
	fileLoader ConfigLoader
	envLoader  ConfigLoader
	logger     logger.Logger
}

// NewConfig builds a Config that reads JSON files and PORTPROBE_ variables.
// A nil logger gets a warn-level stderr logger so loading can report
// problems before the real logger exists.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = createBasicLogger()
	}

	return &Config{
		fileLoader: &FileConfigLoader{logger: log},
		envLoader:  NewEnvConfigLoader(log, EnvPrefix),
		logger:     log,
	}
}

func createBasicLogger() logger.Logger {
	zlog := zerolog.New(os.Stderr).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()

	return logger.NewComponentLogger(zlog, "config")
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadScanConfig layers defaults, the file at path (skipped when empty),
// the environment and finally the overrides, then validates the result.
func (c *Config) LoadScanConfig(ctx context.Context, path string, overrides ...Override) (*models.ScanConfig, error) {
	cfg := models.DefaultScanConfig()

	if err := c.LoadAndValidate(ctx, path, &cfg, overrides...); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadAndValidate applies the file and environment loaders and the
// overrides on top of whatever cfg already holds.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg *models.ScanConfig, overrides ...Override) error {
	if cfg == nil {
		return errInvalidConfigPtr
	}

	if path != "" {
		if err := c.fileLoader.Load(ctx, path, cfg); err != nil {
			return err
		}
	}

	if err := c.envLoader.Load(ctx, "", cfg); err != nil {
		return err
	}

	for _, o := range overrides {
		o(cfg)
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration rejected: %w", err)
	}

	c.logger.Debug().
		Str("host", cfg.Host).
		Strs("ports", cfg.Ports).
		Dur("timeout", cfg.Timeout.Duration()).
		Int("retries", cfg.Retries).
		Int("workers", cfg.Workers).
		Msg("Resolved scan configuration")

	return nil
}

/*
 *
 * Copyright 2025 Hewlett Packard Enterprise Development LP.
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
 *
 */

// Package config loads shmemrun settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Cray-HPE/uas-mgr/internal/shmem"
)

// Environment overrides, applied after the file.
const (
	EnvNPEs        = "SHMEMRUN_NPES"
	EnvTimeout     = "SHMEMRUN_TIMEOUT"
	EnvInitTimeout = "SHMEMRUN_INIT_TIMEOUT"
	EnvSegmentDir  = "SHMEMRUN_SEGMENT_DIR"
	EnvTagOutput   = "SHMEMRUN_TAG_OUTPUT"
	EnvVerify      = "SHMEMRUN_VERIFY"
	EnvLogLevel    = "SHMEMRUN_LOG_LEVEL"
)

// Config holds launcher settings.
type Config struct {
	NPEs        int           `yaml:"npes"`
	Timeout     time.Duration `yaml:"timeout"`
	InitTimeout time.Duration `yaml:"init_timeout"`
	SegmentDir  string        `yaml:"segment_dir"`
	TagOutput   bool          `yaml:"tag_output"`
	Verify      bool          `yaml:"verify"`
	LogLevel    string        `yaml:"log_level"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		NPEs:        1,
		Timeout:     5 * time.Minute,
		InitTimeout: 30 * time.Second,
		LogLevel:    "info",
	}
}

// Load returns the defaults overlaid with path (when non-empty) and then the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	if v, ok := lookup(EnvNPEs); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvNPEs, err))
		}
		c.NPEs = n
	}
	if v, ok := lookup(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTimeout, err))
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvInitTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvInitTimeout, err))
		}
		c.InitTimeout = d
	}
	if v, ok := lookup(EnvSegmentDir); ok {
		c.SegmentDir = v
	}
	if v, ok := lookup(EnvTagOutput); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTagOutput, err))
		}
		c.TagOutput = b
	}
	if v, ok := lookup(EnvVerify); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvVerify, err))
		}
		c.Verify = b
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}

	return errors.Join(errs...)
}

// Validate reports settings the launcher cannot run with.
func (c Config) Validate() error {
	if c.NPEs < 1 || c.NPEs > shmem.MaxPEs {
		return fmt.Errorf("npes %d out of range [1, %d]", c.NPEs, shmem.MaxPEs)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", c.Timeout)
	}
	if c.InitTimeout < 0 {
		return fmt.Errorf("negative init_timeout %v", c.InitTimeout)
	}
	return nil
}

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

package shmem

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment a launcher sets for every PE.
const (
	EnvSession     = "SHMEM_SESSION"
	EnvPE          = "SHMEM_PE"
	EnvNPEs        = "SHMEM_NPES"
	EnvSegmentDir  = "SHMEM_SEGMENT_DIR"
	EnvInitTimeout = "SHMEM_INIT_TIMEOUT"
	EnvLogLevel    = "SHMEM_LOG_LEVEL"
)

// Options describes the session a PE joins.
type Options struct {
	Session string
	PE      int
	NPEs    int
	// Dir overrides the segment directory; empty selects the default.
	Dir string
	// Timeout bounds the init and finalize barriers separately. Zero waits
	// until the context is done.
	Timeout time.Duration
}

// Validate checks that the options describe a joinable PE.
func (o Options) Validate() error {
	if o.Session == "" {
		return ErrNoSession
	}
	if o.NPEs < 1 || o.NPEs > MaxPEs {
		return fmt.Errorf("npes %d out of range [1, %d]", o.NPEs, MaxPEs)
	}
	if o.PE < 0 || o.PE >= o.NPEs {
		return fmt.Errorf("pe %d out of range [0, %d)", o.PE, o.NPEs)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("negative init timeout %v", o.Timeout)
	}
	return nil
}

// Env returns the environment entries that describe o, in KEY=value form.
func (o Options) Env() []string {
	env := []string{
		EnvSession + "=" + o.Session,
		EnvPE + "=" + strconv.Itoa(o.PE),
		EnvNPEs + "=" + strconv.Itoa(o.NPEs),
	}
	if o.Dir != "" {
		env = append(env, EnvSegmentDir+"="+o.Dir)
	}
	if o.Timeout > 0 {
		env = append(env, EnvInitTimeout+"="+o.Timeout.String())
	}
	return env
}

// OptionsFromEnv reads the session description set by the launcher.
func OptionsFromEnv() (Options, error) {
	return optionsFromLookup(os.LookupEnv)
}

func optionsFromLookup(lookup func(string) (string, bool)) (Options, error) {
	var opts Options

	session, ok := lookup(EnvSession)
	if !ok || session == "" {
		return opts, ErrNoSession
	}
	opts.Session = session

	var err error
	if opts.PE, err = intFromLookup(lookup, EnvPE); err != nil {
		return opts, err
	}
	if opts.NPEs, err = intFromLookup(lookup, EnvNPEs); err != nil {
		return opts, err
	}
	opts.Dir, _ = lookup(EnvSegmentDir)

	if v, ok := lookup(EnvInitTimeout); ok && v != "" {
		if opts.Timeout, err = time.ParseDuration(v); err != nil {
			return opts, fmt.Errorf("parse %s: %w", EnvInitTimeout, err)
		}
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func intFromLookup(lookup func(string) (string, bool), key string) (int, error) {
	v, ok := lookup(key)
	if !ok {
		return 0, fmt.Errorf("%s not set", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

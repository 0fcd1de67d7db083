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
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateInitialized
	stateFinalized
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger for runtime diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// Runtime is one PE's handle on a session.
type Runtime struct {
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state lifecycle
	seg   *Segment
}

// New returns an uninitialized runtime for the PE described by opts.
func New(opts Options, options ...Option) *Runtime {
	r := &Runtime{
		opts:   opts,
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(r)
	}
	r.logger = r.logger.With(zap.String("session", opts.Session), zap.Int("pe", opts.PE))
	return r
}

// Init attaches to the session, claims this PE's slot and waits until every
// PE in the session has done the same.
func (r *Runtime) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateInitialized:
		return ErrAlreadyInitialized
	case stateFinalized:
		return ErrFinalized
	}

	if err := r.opts.Validate(); err != nil {
		return err
	}

	seg, err := OpenSession(r.opts.Session, r.opts.Dir)
	if err != nil {
		return fmt.Errorf("attach session %q: %w", r.opts.Session, err)
	}

	if got := seg.NPEs(); got != r.opts.NPEs {
		seg.Close()
		return fmt.Errorf("%w: environment says %d, segment says %d", ErrNPEsMismatch, r.opts.NPEs, got)
	}

	if !seg.Slot(r.opts.PE).claim(uint32(os.Getpid()), time.Now().UnixNano()) {
		seg.Close()
		return fmt.Errorf("%w: pe %d", ErrPEInUse, r.opts.PE)
	}
	atomic.AddUint32(&seg.Header().attached, 1)
	r.logger.Debug("attached", zap.String("path", seg.Path), zap.Int("npes", r.opts.NPEs))

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := seg.Barrier(ctx); err != nil {
		seg.Close()
		return fmt.Errorf("init barrier: %w", err)
	}

	r.seg = seg
	r.state = stateInitialized
	r.logger.Debug("initialized")
	return nil
}

// MyPE returns this PE's rank, or -1 when the runtime is not initialized.
func (r *Runtime) MyPE() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateInitialized {
		return -1
	}
	return r.opts.PE
}

// NPEs returns the number of PEs in the session, or -1 when the runtime is
// not initialized.
func (r *Runtime) NPEs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateInitialized {
		return -1
	}
	return r.opts.NPEs
}

// Barrier synchronizes all PEs in the session.
func (r *Runtime) Barrier(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkInitialized(); err != nil {
		return err
	}
	return r.seg.Barrier(ctx)
}

// Finalize waits for every PE to reach finalize, releases this PE's slot and
// detaches. The segment is detached even when the barrier fails.
func (r *Runtime) Finalize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkInitialized(); err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	barrierErr := r.seg.Barrier(ctx)
	if barrierErr != nil {
		barrierErr = fmt.Errorf("finalize barrier: %w", barrierErr)
	}

	if r.seg.Slot(r.opts.PE).release(time.Now().UnixNano()) {
		atomic.AddUint32(&r.seg.Header().finalized, 1)
	}
	closeErr := r.seg.Close()
	r.seg = nil
	r.state = stateFinalized
	r.logger.Debug("finalized", zap.Error(barrierErr))

	return errors.Join(barrierErr, closeErr)
}

func (r *Runtime) checkInitialized() error {
	switch r.state {
	case stateUninitialized:
		return ErrNotInitialized
	case stateFinalized:
		return ErrFinalized
	}
	return nil
}

func (r *Runtime) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout > 0 {
		return context.WithTimeout(ctx, r.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

var (
	defaultMu      sync.Mutex
	defaultRuntime *Runtime
)

// Init initializes the process-wide runtime from the environment a launcher
// provides. It returns ErrNoSession when the process was started without one.
func Init(ctx context.Context, options ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	opts, err := OptionsFromEnv()
	if err != nil {
		return err
	}
	if defaultRuntime != nil {
		return defaultRuntime.Init(ctx)
	}
	rt := New(opts, options...)
	if err := rt.Init(ctx); err != nil {
		return err
	}
	defaultRuntime = rt
	return nil
}

// MyPE returns the rank of the calling process, or -1 before Init.
func MyPE() int {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		return -1
	}
	return defaultRuntime.MyPE()
}

// NPEs returns the number of processes in the session, or -1 before Init.
func NPEs() int {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		return -1
	}
	return defaultRuntime.NPEs()
}

// Finalize shuts down the process-wide runtime.
func Finalize(ctx context.Context) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		return ErrNotInitialized
	}
	return defaultRuntime.Finalize(ctx)
}

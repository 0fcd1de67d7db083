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

// Package hello is the SHMEM smoke test body: start the runtime, report this
// PE's rank and the session size, shut the runtime down.
package hello

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Cray-HPE/uas-mgr/internal/shmem"
)

// lifecycle is the part of the runtime the greeting needs. *shmem.Runtime
// implements it.
type lifecycle interface {
	Init(ctx context.Context) error
	MyPE() int
	NPEs() int
	Finalize(ctx context.Context) error
}

// processRuntime routes to the process-wide runtime.
type processRuntime []shmem.Option

func (o processRuntime) Init(ctx context.Context) error   { return shmem.Init(ctx, o...) }
func (processRuntime) MyPE() int                          { return shmem.MyPE() }
func (processRuntime) NPEs() int                          { return shmem.NPEs() }
func (processRuntime) Finalize(ctx context.Context) error { return shmem.Finalize(ctx) }

// Run initializes the process-wide runtime, writes one greeting line to w
// and finalizes.
func Run(ctx context.Context, w io.Writer, options ...shmem.Option) error {
	return greet(ctx, processRuntime(options), w)
}

func greet(ctx context.Context, rt lifecycle, w io.Writer) error {
	if err := rt.Init(ctx); err != nil {
		return fmt.Errorf("shmem init: %w", err)
	}

	if _, err := fmt.Fprintf(w, "Hello World from Shmem #%d of %d\n", rt.MyPE(), rt.NPEs()); err != nil {
		// Peers are waiting in the finalize barrier either way.
		if ferr := rt.Finalize(ctx); ferr != nil {
			err = errors.Join(err, fmt.Errorf("shmem finalize: %w", ferr))
		}
		return err
	}

	if err := rt.Finalize(ctx); err != nil {
		return fmt.Errorf("shmem finalize: %w", err)
	}
	return nil
}

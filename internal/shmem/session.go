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
	"math"
	"sync/atomic"
	"time"
)

// barrierPoll bounds a single futex wait so that cancellation and aborts are
// noticed even when a wake is lost.
const barrierPoll = 50 * time.Millisecond

// Barrier blocks until npes callers across the session have entered it, the
// session is aborted, or ctx is done.
//
// It is a central counter barrier: the last arriver resets the arrival count
// and then advances the generation, so a waiter that observes the new
// generation may immediately enter the next barrier.
func (s *Segment) Barrier(ctx context.Context) error {
	h := s.Header()
	npes := h.NPEs()

	if h.Aborted() {
		return ErrSessionAborted
	}

	gen := atomic.LoadUint32(&h.generation)
	if atomic.AddUint32(&h.arrived, 1) == npes {
		atomic.StoreUint32(&h.arrived, 0)
		atomic.AddUint32(&h.generation, 1)
		if _, err := futexWake(&h.generation, math.MaxInt32); err != nil {
			return err
		}
		return nil
	}

	for atomic.LoadUint32(&h.generation) == gen {
		if h.Aborted() {
			return ErrSessionAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := futexWaitTimeout(&h.generation, gen, int64(barrierPoll)); err != nil && !errors.Is(err, ErrFutexTimeout) {
			return err
		}
	}
	return nil
}

// WaitForAttach waits until at least n PEs have attached to the session.
// The launcher calls this after starting the PE processes.
func (s *Segment) WaitForAttach(ctx context.Context, n int) error {
	h := s.Header()

	ticker := time.NewTicker(1 * time.Millisecond)
	defer ticker.Stop()

	for {
		if int(h.Attached()) >= n {
			return nil
		}
		if h.Aborted() {
			return ErrSessionAborted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Abort marks the session aborted and wakes every PE blocked in a barrier.
// The generation is left untouched so waiters report ErrSessionAborted
// rather than a completed barrier.
func (s *Segment) Abort() error {
	h := s.Header()
	h.SetAborted(true)
	_, err := futexWake(&h.generation, math.MaxInt32)
	return err
}

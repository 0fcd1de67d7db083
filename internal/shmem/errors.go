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

import "errors"

var (
	// ErrNoSession is returned when the process was not started by a
	// launcher, so no session is described in the environment.
	ErrNoSession = errors.New("shmem: no session in environment (not started by a launcher?)")

	// ErrInvalidSegment is returned when a segment fails header validation.
	ErrInvalidSegment = errors.New("shmem: invalid session segment")

	// ErrNPEsMismatch is returned when the environment and the segment
	// disagree on the number of PEs.
	ErrNPEsMismatch = errors.New("shmem: npes does not match session")

	// ErrPEInUse is returned when another process already claimed the slot.
	ErrPEInUse = errors.New("shmem: pe already initialized")

	// ErrSessionAborted is returned from a barrier after the launcher aborted
	// the session.
	ErrSessionAborted = errors.New("shmem: session aborted")

	ErrNotInitialized     = errors.New("shmem: runtime not initialized")
	ErrAlreadyInitialized = errors.New("shmem: runtime already initialized")
	ErrFinalized          = errors.New("shmem: runtime finalized")

	// ErrUnsupported is returned on platforms without shared futexes.
	ErrUnsupported = errors.New("shmem: not supported on this platform")

	// ErrFutexTimeout is returned by futexWaitTimeout when the wait times out.
	ErrFutexTimeout = errors.New("futex timeout")
)

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

// Package shmem provides a minimal SHMEM-style runtime for processes on a
// single host.
//
// A launcher creates a session segment, a memory-mapped file holding a
// fixed header and one slot per processing element (PE), and starts one
// process per PE with the session described in the environment. Each PE
// calls Init, which attaches to the segment, claims its slot and waits in a
// global barrier until every PE has arrived. MyPE and NPEs then report the
// PE's rank and the session size, and Finalize runs a closing barrier before
// detaching.
//
// Cross-process blocking uses a shared (non-private) futex on the barrier
// generation word. Waits are bounded so that context cancellation and a
// launcher abort are always observed.
package shmem

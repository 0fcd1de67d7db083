//go:build linux && (amd64 || arm64)

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
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// createTestSession creates a session segment with a unique name in a
// per-test directory. Cleanup is registered with t.Cleanup so the segment is
// unmapped and removed even if the test fails.
func createTestSession(t *testing.T, npes int) *Segment {
	t.Helper()

	dir := t.TempDir()
	name := fmt.Sprintf("%s-%d", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())

	seg, err := CreateSession(name, npes, dir)
	if err != nil {
		t.Fatalf("Failed to create test session %s: %v", name, err)
	}

	t.Cleanup(func() {
		seg.Close()
		RemoveSession(name, dir)
	})

	return seg
}

// testOptions returns the options PE pe would receive from a launcher for seg.
func testOptions(seg *Segment, pe int) Options {
	return Options{
		Session: seg.Name,
		PE:      pe,
		NPEs:    seg.NPEs(),
		Dir:     filepath.Dir(seg.Path),
		Timeout: 5 * time.Second,
	}
}

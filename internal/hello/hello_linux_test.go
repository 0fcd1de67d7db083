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

package hello

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cray-HPE/uas-mgr/internal/shmem"
	"github.com/Cray-HPE/uas-mgr/internal/smoke"
)

func TestRunSinglePE(t *testing.T) {
	dir := t.TempDir()
	seg, err := shmem.CreateSession("hello-single", 1, dir)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	opts := shmem.Options{Session: "hello-single", PE: 0, NPEs: 1, Dir: dir, Timeout: 5 * time.Second}
	for _, kv := range opts.Env() {
		k, v, _ := strings.Cut(kv, "=")
		t.Setenv(k, v)
	}

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), &out))
	assert.Equal(t, "Hello World from Shmem #0 of 1\n", out.String())

	_, err = smoke.Verify(strings.Split(strings.TrimSpace(out.String()), "\n"), 1)
	assert.NoError(t, err)

	st := seg.Snapshot()
	assert.Equal(t, uint32(1), st.Attached)
	assert.Equal(t, uint32(1), st.Finalized)
}

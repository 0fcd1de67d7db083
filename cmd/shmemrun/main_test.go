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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cray-HPE/uas-mgr/internal/shmem"
	"github.com/Cray-HPE/uas-mgr/internal/smoke"
)

// greeter prints the hello line from the environment a launcher provides,
// without joining the session.
const greeter = `echo "Hello World from Shmem #$SHMEM_PE of $SHMEM_NPES"`

func TestLaunchVerify(t *testing.T) {
	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{
		"-n", "3", "--verify", "--segment-dir", t.TempDir(), "--", "/bin/sh", "-c", greeter,
	}, &out, &errOut)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	assert.Len(t, lines, 3)
	assert.Contains(t, errOut.String(), "verified 3 greetings from 3 PEs")
}

func TestLaunchVerifyFails(t *testing.T) {
	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{
		"-n", "2", "--verify", "--segment-dir", t.TempDir(), "--", "/bin/sh", "-c", "echo nothing to see",
	}, &out, &errOut)

	var verr *smoke.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "got 0 greetings, want 2")
}

func TestLaunchPEFailure(t *testing.T) {
	err := execute(context.Background(), []string{
		"-n", "2", "--segment-dir", t.TempDir(), "--", "/bin/sh", "-c", "exit 7",
	}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestLaunchConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shmemrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("npes: 2\nverify: true\ntag_output: true\n"), 0644))

	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{
		"--config", path, "--segment-dir", dir, "--", "/bin/sh", "-c", greeter,
	}, &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[1] Hello World from Shmem #1 of 2")
	assert.Contains(t, errOut.String(), "verified 2 greetings from 2 PEs")
}

func TestLaunchRejectsBadNPEs(t *testing.T) {
	err := execute(context.Background(), []string{"-n", "0", "--", "/bin/true"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestLaunchRequiresProgram(t *testing.T) {
	err := execute(context.Background(), []string{"-n", "2"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	seg, err := shmem.CreateSession("inspect-me", 2, dir)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	var out bytes.Buffer
	err = execute(context.Background(), []string{"inspect", "--segment-dir", dir, "inspect-me"}, &out, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "=== Session inspect-me ===")
	assert.Contains(t, out.String(), "PEs: 2 attached: 0 finalized: 0")
	assert.Contains(t, out.String(), "Aborted: false")
	assert.Contains(t, out.String(), "free")
}

func TestInspectMissing(t *testing.T) {
	err := execute(context.Background(), []string{"inspect", "--segment-dir", t.TempDir(), "nope"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestHelpShowsConfigDefaults(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"--help"}, &out, &bytes.Buffer{}))

	help := out.String()
	assert.Contains(t, help, "bound on the whole run (0 disables) (default 5m0s)")
	assert.Contains(t, help, "bound on each PE's init and finalize barriers (0 disables) (default 30s)")
	assert.Contains(t, help, "number of PEs to start (default 1)")
}

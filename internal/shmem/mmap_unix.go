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
	"os"

	"golang.org/x/sys/unix"
)

func init() {
	unmapMemory = munmapImpl
}

// CreateSession creates a new session segment for npes PEs. The caller owns
// the returned segment and is responsible for RemoveSession.
func CreateSession(name string, npes int, dir string) (*Segment, error) {
	path := sessionPath(name, dir)

	totalSize, err := CalculateSegmentSize(npes)
	if err != nil {
		return nil, fmt.Errorf("layout calculation failed: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(totalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}

	mem, err := mmapFile(file, int(totalSize))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	seg := &Segment{File: file, Mem: mem, Path: path, Name: name}

	// A fresh truncated file is zeroed, so counters and slots start at zero.
	h := seg.Header()
	h.SetVersion(SegmentVersion)
	h.SetNPEs(uint32(npes))
	h.SetTotalSize(totalSize)
	h.SetLauncherPID(uint32(os.Getpid()))
	// Magic last: OpenSession rejects the segment until it is set.
	var magic [8]byte
	copy(magic[:], SegmentMagic)
	h.SetMagic(magic)

	return seg, nil
}

// OpenSession maps an existing session segment.
func OpenSession(name, dir string) (*Segment, error) {
	path := sessionPath(name, dir)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}

	size := info.Size()
	if size < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("%w: segment file too small: %d bytes", ErrInvalidSegment, size)
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	seg := &Segment{File: file, Mem: mem, Path: path, Name: name}
	if err := ValidateSessionHeader(seg.Header()); err != nil {
		seg.Close()
		return nil, err
	}
	if uint64(size) < seg.Header().TotalSize() {
		seg.Close()
		return nil, fmt.Errorf("%w: segment file truncated: %d bytes", ErrInvalidSegment, size)
	}

	return seg, nil
}

// mmapFile memory maps a file
func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

// munmapImpl unmaps a memory-mapped region
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}

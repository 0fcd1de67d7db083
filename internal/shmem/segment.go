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
	"path/filepath"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants
const (
	// Magic bytes for segment identification
	SegmentMagic = "SHMEMRT\x00"

	// Current layout version
	SegmentVersion = uint32(1)

	// Session header size (aligned to 128 bytes)
	SegmentHeaderSize = 128

	// Size of one PE slot (aligned to 64 bytes)
	PESlotSize = 64

	// MaxPEs bounds the number of PEs in one session.
	MaxPEs = 4096

	// DefaultSegmentDir is where session segments live when it exists.
	DefaultSegmentDir = "/dev/shm"

	segmentPrefix = "shmem_"
)

// PE slot states
const (
	SlotFree        = uint32(0)
	SlotInitialized = uint32(1)
	SlotFinalized   = uint32(2)
)

// Platform-specific functions (implemented in platform-specific files)
var (
	// unmapMemory unmaps a memory-mapped region
	unmapMemory func([]byte) error
)

// SessionHeader is the shared session header at offset 0 of the segment.
type SessionHeader struct {
	magic       [8]byte  // 0x00: "SHMEMRT\0"
	version     uint32   // 0x08: layout version
	npes        uint32   // 0x0C: number of PEs
	totalSize   uint64   // 0x10: total segment size
	launcherPID uint32   // 0x18: launcher process ID
	attached    uint32   // 0x1C: PEs attached so far
	arrived     uint32   // 0x20: barrier arrival counter
	generation  uint32   // 0x24: barrier generation (futex word)
	finalized   uint32   // 0x28: PEs finalized so far
	aborted     uint32   // 0x2C: set by the launcher to abort the session
	reserved    [80]byte // 0x30-0x7F
}

// Magic returns the magic bytes
func (h *SessionHeader) Magic() [8]byte {
	return h.magic
}

// SetMagic sets the magic bytes
func (h *SessionHeader) SetMagic(magic [8]byte) {
	h.magic = magic
}

// Version returns the layout version
func (h *SessionHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// SetVersion sets the layout version
func (h *SessionHeader) SetVersion(version uint32) {
	atomic.StoreUint32(&h.version, version)
}

// NPEs returns the number of PEs in the session
func (h *SessionHeader) NPEs() uint32 {
	return atomic.LoadUint32(&h.npes)
}

// SetNPEs sets the number of PEs in the session
func (h *SessionHeader) SetNPEs(n uint32) {
	atomic.StoreUint32(&h.npes, n)
}

// TotalSize returns the total segment size
func (h *SessionHeader) TotalSize() uint64 {
	return atomic.LoadUint64(&h.totalSize)
}

// SetTotalSize sets the total segment size
func (h *SessionHeader) SetTotalSize(size uint64) {
	atomic.StoreUint64(&h.totalSize, size)
}

// LauncherPID returns the launcher process ID
func (h *SessionHeader) LauncherPID() uint32 {
	return atomic.LoadUint32(&h.launcherPID)
}

// SetLauncherPID sets the launcher process ID
func (h *SessionHeader) SetLauncherPID(pid uint32) {
	atomic.StoreUint32(&h.launcherPID, pid)
}

// Attached returns the number of PEs that completed attach
func (h *SessionHeader) Attached() uint32 {
	return atomic.LoadUint32(&h.attached)
}

// Finalized returns the number of PEs that completed finalize
func (h *SessionHeader) Finalized() uint32 {
	return atomic.LoadUint32(&h.finalized)
}

// Generation returns the current barrier generation
func (h *SessionHeader) Generation() uint32 {
	return atomic.LoadUint32(&h.generation)
}

// Aborted returns the abort flag
func (h *SessionHeader) Aborted() bool {
	return atomic.LoadUint32(&h.aborted) != 0
}

// SetAborted sets the abort flag
func (h *SessionHeader) SetAborted(aborted bool) {
	var val uint32
	if aborted {
		val = 1
	}
	atomic.StoreUint32(&h.aborted, val)
}

// PESlot is one entry of the PE table that follows the header.
type PESlot struct {
	pid       uint32   // 0x00: PE process ID
	state     uint32   // 0x04: SlotFree, SlotInitialized or SlotFinalized
	initNanos int64    // 0x08: unix nanos at init
	finiNanos int64    // 0x10: unix nanos at finalize
	reserved  [40]byte // 0x18-0x3F
}

// PID returns the PE process ID
func (s *PESlot) PID() uint32 {
	return atomic.LoadUint32(&s.pid)
}

// State returns the slot state
func (s *PESlot) State() uint32 {
	return atomic.LoadUint32(&s.state)
}

// claim moves the slot from free to initialized. It reports false when the
// slot is already taken.
func (s *PESlot) claim(pid uint32, nanos int64) bool {
	if !atomic.CompareAndSwapUint32(&s.state, SlotFree, SlotInitialized) {
		return false
	}
	atomic.StoreUint32(&s.pid, pid)
	atomic.StoreInt64(&s.initNanos, nanos)
	return true
}

// release moves the slot from initialized to finalized.
func (s *PESlot) release(nanos int64) bool {
	if !atomic.CompareAndSwapUint32(&s.state, SlotInitialized, SlotFinalized) {
		return false
	}
	atomic.StoreInt64(&s.finiNanos, nanos)
	return true
}

// CalculateSegmentSize returns the segment size for a session of npes PEs.
func CalculateSegmentSize(npes int) (uint64, error) {
	if npes < 1 || npes > MaxPEs {
		return 0, fmt.Errorf("npes %d out of range [1, %d]", npes, MaxPEs)
	}
	return alignTo64(SegmentHeaderSize + uint64(npes)*PESlotSize), nil
}

// alignTo64 aligns a size to 64-byte boundary
func alignTo64(size uint64) uint64 {
	return (size + 63) &^ 63
}

// ValidateSessionHeader validates a session header for consistency
func ValidateSessionHeader(h *SessionHeader) error {
	if string(h.magic[:]) != SegmentMagic {
		return fmt.Errorf("%w: invalid magic bytes", ErrInvalidSegment)
	}
	if h.Version() != SegmentVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidSegment, h.Version(), SegmentVersion)
	}
	expected, err := CalculateSegmentSize(int(h.NPEs()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	if h.TotalSize() != expected {
		return fmt.Errorf("%w: total size mismatch: got %d, expected %d", ErrInvalidSegment, h.TotalSize(), expected)
	}
	return nil
}

// Segment represents a mapped session segment
type Segment struct {
	File *os.File // File backing the shared memory
	Mem  []byte   // Memory-mapped region
	Path string   // File path
	Name string   // Session name
}

// Header returns the typed view of the session header.
func (s *Segment) Header() *SessionHeader {
	return (*SessionHeader)(unsafe.Pointer(&s.Mem[0]))
}

// Slot returns the typed view of PE slot pe.
func (s *Segment) Slot(pe int) *PESlot {
	off := uintptr(SegmentHeaderSize) + uintptr(pe)*PESlotSize
	return (*PESlot)(unsafe.Pointer(uintptr(unsafe.Pointer(&s.Mem[0])) + off))
}

// NPEs returns the session size recorded in the header.
func (s *Segment) NPEs() int {
	return int(s.Header().NPEs())
}

// Close unmaps the memory and closes the file
func (s *Segment) Close() error {
	var firstErr error

	if s.Mem != nil {
		if err := unmapMemory(s.Mem); err != nil && firstErr == nil {
			firstErr = err
		}
		s.Mem = nil
	}

	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}

	return firstErr
}

// SlotState is a snapshot of one PE slot.
type SlotState struct {
	PE        int
	PID       uint32
	State     uint32
	InitNanos int64
	FiniNanos int64
}

// SessionState is a snapshot of the session for diagnostics.
type SessionState struct {
	Name        string
	Path        string
	NPEs        uint32
	TotalSize   uint64
	LauncherPID uint32
	Attached    uint32
	Arrived     uint32
	Generation  uint32
	Finalized   uint32
	Aborted     bool
	Slots       []SlotState
}

// Snapshot reads the header and slot table. Fields are loaded one at a time,
// so a snapshot of a live session may straddle a barrier.
func (s *Segment) Snapshot() SessionState {
	h := s.Header()
	st := SessionState{
		Name:        s.Name,
		Path:        s.Path,
		NPEs:        h.NPEs(),
		TotalSize:   h.TotalSize(),
		LauncherPID: h.LauncherPID(),
		Attached:    h.Attached(),
		Arrived:     atomic.LoadUint32(&h.arrived),
		Generation:  h.Generation(),
		Finalized:   h.Finalized(),
		Aborted:     h.Aborted(),
	}
	for pe := 0; pe < int(st.NPEs); pe++ {
		slot := s.Slot(pe)
		st.Slots = append(st.Slots, SlotState{
			PE:        pe,
			PID:       slot.PID(),
			State:     slot.State(),
			InitNanos: atomic.LoadInt64(&slot.initNanos),
			FiniNanos: atomic.LoadInt64(&slot.finiNanos),
		})
	}
	return st
}

// SlotStateName returns a printable name for a slot state.
func SlotStateName(state uint32) string {
	switch state {
	case SlotFree:
		return "free"
	case SlotInitialized:
		return "initialized"
	case SlotFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// Utility functions

// sessionPath returns the segment path for name under dir. An empty dir
// selects /dev/shm when present and the temporary directory otherwise.
func sessionPath(name, dir string) string {
	if dir == "" {
		dir = os.TempDir()
		if isDevShmAvailable() {
			dir = DefaultSegmentDir
		}
	}
	return filepath.Join(dir, segmentPrefix+name)
}

// isDevShmAvailable checks if /dev/shm is available
func isDevShmAvailable() bool {
	info, err := os.Stat(DefaultSegmentDir)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// RemoveSession removes a session segment file
func RemoveSession(name, dir string) error {
	return os.Remove(sessionPath(name, dir))
}

// SessionExists checks if a session segment exists
func SessionExists(name, dir string) bool {
	_, err := os.Stat(sessionPath(name, dir))
	return err == nil
}

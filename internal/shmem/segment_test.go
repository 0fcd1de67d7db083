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
	"errors"
	"testing"
	"unsafe"
)

func TestSessionHeaderSize(t *testing.T) {
	size := unsafe.Sizeof(SessionHeader{})
	if size != SegmentHeaderSize {
		t.Errorf("SessionHeader size = %d, want %d", size, SegmentHeaderSize)
	}
}

func TestPESlotSize(t *testing.T) {
	size := unsafe.Sizeof(PESlot{})
	if size != PESlotSize {
		t.Errorf("PESlot size = %d, want %d", size, PESlotSize)
	}
}

func TestSessionHeaderFieldOffsets(t *testing.T) {
	h := &SessionHeader{}

	tests := []struct {
		name   string
		offset uintptr
		want   uintptr
	}{
		{"magic", unsafe.Offsetof(h.magic), 0x00},
		{"version", unsafe.Offsetof(h.version), 0x08},
		{"npes", unsafe.Offsetof(h.npes), 0x0C},
		{"totalSize", unsafe.Offsetof(h.totalSize), 0x10},
		{"launcherPID", unsafe.Offsetof(h.launcherPID), 0x18},
		{"attached", unsafe.Offsetof(h.attached), 0x1C},
		{"arrived", unsafe.Offsetof(h.arrived), 0x20},
		{"generation", unsafe.Offsetof(h.generation), 0x24},
		{"finalized", unsafe.Offsetof(h.finalized), 0x28},
		{"aborted", unsafe.Offsetof(h.aborted), 0x2C},
		{"reserved", unsafe.Offsetof(h.reserved), 0x30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.offset != tt.want {
				t.Errorf("offset of %s = 0x%02X, want 0x%02X", tt.name, uint64(tt.offset), uint64(tt.want))
			}
		})
	}
}

func TestPESlotFieldOffsets(t *testing.T) {
	s := &PESlot{}

	tests := []struct {
		name   string
		offset uintptr
		want   uintptr
	}{
		{"pid", unsafe.Offsetof(s.pid), 0x00},
		{"state", unsafe.Offsetof(s.state), 0x04},
		{"initNanos", unsafe.Offsetof(s.initNanos), 0x08},
		{"finiNanos", unsafe.Offsetof(s.finiNanos), 0x10},
		{"reserved", unsafe.Offsetof(s.reserved), 0x18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.offset != tt.want {
				t.Errorf("offset of %s = 0x%02X, want 0x%02X", tt.name, uint64(tt.offset), uint64(tt.want))
			}
		})
	}
}

func TestCalculateSegmentSize(t *testing.T) {
	tests := []struct {
		name    string
		npes    int
		want    uint64
		wantErr bool
	}{
		{name: "single pe", npes: 1, want: 192},
		{name: "four pes", npes: 4, want: 384},
		{name: "max pes", npes: MaxPEs, want: SegmentHeaderSize + MaxPEs*PESlotSize},
		{name: "zero pes", npes: 0, wantErr: true},
		{name: "negative pes", npes: -3, wantErr: true},
		{name: "too many pes", npes: MaxPEs + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSegmentSize(tt.npes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CalculateSegmentSize(%d) error = %v, wantErr %v", tt.npes, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("CalculateSegmentSize(%d) = %d, want %d", tt.npes, got, tt.want)
			}
		})
	}
}

func validHeader(npes uint32) *SessionHeader {
	h := &SessionHeader{}
	var magic [8]byte
	copy(magic[:], SegmentMagic)
	h.SetMagic(magic)
	h.SetVersion(SegmentVersion)
	h.SetNPEs(npes)
	size, _ := CalculateSegmentSize(int(npes))
	h.SetTotalSize(size)
	return h
}

func TestValidateSessionHeader(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(h *SessionHeader)
		wantErr bool
	}{
		{name: "valid", mutate: func(*SessionHeader) {}},
		{name: "bad magic", mutate: func(h *SessionHeader) { h.SetMagic([8]byte{'G', 'R', 'P', 'C', 'S', 'H', 'M', 0}) }, wantErr: true},
		{name: "bad version", mutate: func(h *SessionHeader) { h.SetVersion(2) }, wantErr: true},
		{name: "zero npes", mutate: func(h *SessionHeader) { h.SetNPEs(0) }, wantErr: true},
		{name: "size mismatch", mutate: func(h *SessionHeader) { h.SetTotalSize(h.TotalSize() + 64) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHeader(4)
			tt.mutate(h)
			err := ValidateSessionHeader(h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSessionHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSegment) {
				t.Errorf("ValidateSessionHeader() error = %v, want ErrInvalidSegment", err)
			}
		})
	}
}

func TestPESlotClaimRelease(t *testing.T) {
	s := &PESlot{}

	if s.release(1) {
		t.Error("release() on a free slot = true, want false")
	}
	if !s.claim(42, 100) {
		t.Fatal("claim() on a free slot = false, want true")
	}
	if s.claim(43, 200) {
		t.Error("second claim() = true, want false")
	}
	if s.PID() != 42 {
		t.Errorf("PID() = %d, want 42", s.PID())
	}
	if s.State() != SlotInitialized {
		t.Errorf("State() = %d, want %d", s.State(), SlotInitialized)
	}
	if !s.release(300) {
		t.Fatal("release() on an initialized slot = false, want true")
	}
	if s.State() != SlotFinalized {
		t.Errorf("State() = %d, want %d", s.State(), SlotFinalized)
	}
	if s.claim(44, 400) {
		t.Error("claim() on a finalized slot = true, want false")
	}
}

func TestSlotStateName(t *testing.T) {
	tests := map[uint32]string{
		SlotFree:        "free",
		SlotInitialized: "initialized",
		SlotFinalized:   "finalized",
		7:               "unknown(7)",
	}
	for state, want := range tests {
		if got := SlotStateName(state); got != want {
			t.Errorf("SlotStateName(%d) = %q, want %q", state, got, want)
		}
	}
}

// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pgalloc contains the physical frame allocator. Physical memory is a
// single byte slice divided into hostarch.PageSize frames.
package pgalloc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/metric"
)

// MemoryBase is the physical address of the first frame.
const MemoryBase = 0x80000000

// basePPN is the physical page number of the first frame.
const basePPN = MemoryBase >> hostarch.PageShift

// allocatedFrames counts frames allocated across all memory files.
var allocatedFrames atomic.Int64

func init() {
	metric.MustRegisterCustomUint64Metric("/mm/frames_allocated", false /* cumulative */, "Number of physical frames currently allocated.", func(...string) uint64 {
		return uint64(allocatedFrames.Load())
	})
}

// PPN is a physical page number.
type PPN uint64

// Addr returns the physical address of the start of the frame.
func (p PPN) Addr() uint64 {
	return uint64(p) << hostarch.PageShift
}

// String implements fmt.Stringer.String.
func (p PPN) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// MemoryFile is the physical memory of the machine.
type MemoryFile struct {
	mu sync.Mutex

	// mem is the backing store of all frames.
	mem []byte

	// used has a bit set for every allocated frame.
	used bitmap

	// next is where the next search for a free frame begins.
	next uint64

	// numFrames is the number of frames in mem.
	numFrames uint64
}

// NewMemoryFile returns a MemoryFile with the given number of frames.
func NewMemoryFile(frames int) (*MemoryFile, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("memory file needs at least one frame, got %d", frames)
	}
	n := uint64(frames)
	return &MemoryFile{
		mem:       make([]byte, n*hostarch.PageSize),
		used:      newBitmap(n),
		numFrames: n,
	}, nil
}

// Allocate allocates n zeroed frames. Either all n frames are allocated, or
// none are and ENOMEM is returned.
func (f *MemoryFile) Allocate(n int) ([]PPN, error) {
	if n < 0 {
		panic(fmt.Sprintf("MemoryFile.Allocate(%d)", n))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if uint64(n) > f.numFrames-f.used.numOnes {
		return nil, oserr.ENOMEM
	}
	ppns := make([]PPN, 0, n)
	for len(ppns) < n {
		i := f.used.firstZero(f.next, f.numFrames)
		if i == f.numFrames {
			// Wrap around; the free count above guarantees a hit.
			i = f.used.firstZero(0, f.numFrames)
		}
		f.used.set(i)
		f.next = i + 1
		if f.next == f.numFrames {
			f.next = 0
		}
		clear(f.frameLocked(i))
		ppns = append(ppns, PPN(basePPN+i))
	}
	allocatedFrames.Add(int64(n))
	return ppns, nil
}

// AllocateOne allocates a single zeroed frame.
func (f *MemoryFile) AllocateOne() (PPN, error) {
	ppns, err := f.Allocate(1)
	if err != nil {
		return 0, err
	}
	return ppns[0], nil
}

// Free returns frames to the allocator.
//
// Preconditions: every frame in ppns is allocated.
func (f *MemoryFile) Free(ppns ...PPN) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ppn := range ppns {
		i, ok := f.indexLocked(ppn)
		if !ok || !f.used.isSet(i) {
			panic(fmt.Sprintf("freeing frame %v which is not allocated", ppn))
		}
		f.used.clear(i)
	}
	allocatedFrames.Add(-int64(len(ppns)))
}

// FrameBytes returns the contents of the frame at ppn. ok is false if ppn is
// not a frame of this memory file or is not allocated.
func (f *MemoryFile) FrameBytes(ppn PPN) (b []byte, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.indexLocked(ppn)
	if !ok || !f.used.isSet(i) {
		return nil, false
	}
	return f.frameLocked(i), true
}

// NumFrames returns the total number of frames.
func (f *MemoryFile) NumFrames() int {
	return int(f.numFrames)
}

// NumFree returns the number of frames available for allocation.
func (f *MemoryFile) NumFree() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int(f.numFrames - f.used.numOnes)
}

// NumAllocated returns the number of allocated frames.
func (f *MemoryFile) NumAllocated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int(f.used.numOnes)
}

func (f *MemoryFile) indexLocked(ppn PPN) (uint64, bool) {
	if uint64(ppn) < basePPN || uint64(ppn)-basePPN >= f.numFrames {
		return 0, false
	}
	return uint64(ppn) - basePPN, true
}

func (f *MemoryFile) frameLocked(i uint64) []byte {
	off := i * hostarch.PageSize
	return f.mem[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

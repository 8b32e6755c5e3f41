// Copyright 2018 Google Inc.
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

package mm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/marshal"
	"os4.dev/os4/pkg/sentry/pgalloc"
)

const rw = os4.PROT_READ | os4.PROT_WRITE

func testMM(t *testing.T, frames int) *MemoryManager {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile(frames)
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	mm, err := NewMemoryManager(mf)
	if err != nil {
		t.Fatalf("NewMemoryManager: %v", err)
	}
	return mm
}

func anon(start, end hostarch.Addr, at hostarch.AccessType) Mapping {
	return Mapping{Range: hostarch.AddrRange{Start: start, End: end}, Perms: at, Kind: Anonymous}
}

func TestMMapWriteUnmap(t *testing.T) {
	mm := testMM(t, 64)
	if err := mm.MMap(0x10000, 4096, rw); err != nil {
		t.Fatalf("MMap: %v", err)
	}
	io := mm.IO()
	want := bytes.Repeat([]byte{0xab}, hostarch.PageSize)
	if _, err := io.CopyOutBytes(0x10000, want); err != nil {
		t.Fatalf("CopyOutBytes: %v", err)
	}
	got := make([]byte, hostarch.PageSize)
	if _, err := io.CopyInBytes(0x10000, got); err != nil {
		t.Fatalf("CopyInBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("read back different bytes")
	}
	if _, err := io.CopyOutBytes(0x11000, []byte{1}); !errors.Is(err, oserr.EFAULT) {
		t.Errorf("write past mapping: got %v, want EFAULT", err)
	}

	if err := mm.MUnmap(0x10000, 4096); err != nil {
		t.Fatalf("MUnmap: %v", err)
	}
	if err := mm.MUnmap(0x10000, 4096); err != oserr.EINVAL {
		t.Errorf("second MUnmap: got %v, want EINVAL", err)
	}
	if _, err := mm.IO().CopyOutBytes(0x10000, []byte{1}); !errors.Is(err, oserr.EFAULT) {
		t.Errorf("write after munmap: got %v, want EFAULT", err)
	}
}

func TestMMapPermissions(t *testing.T) {
	for prot := uint64(1); prot <= 7; prot++ {
		mm := testMM(t, 16)
		if err := mm.MMap(0x20000, 100, prot); err != nil {
			t.Fatalf("MMap(prot=%d): %v", prot, err)
		}
		at, _ := hostarch.AccessTypeFromProt(prot)
		_, rerr := Translate(mm.mf, mm.Token(), 0x20000, hostarch.Read)
		_, werr := Translate(mm.mf, mm.Token(), 0x20fff, hostarch.Write)
		_, xerr := Translate(mm.mf, mm.Token(), 0x20000, hostarch.Execute)
		if (rerr == nil) != at.Read || (werr == nil) != at.Write || (xerr == nil) != at.Execute {
			t.Errorf("prot %d (%v): read=%v write=%v exec=%v", prot, at, rerr, werr, xerr)
		}
		if diff := cmp.Diff([]Mapping{anon(0x20000, 0x21000, at)}, mm.Mappings()); diff != "" {
			t.Errorf("prot %d: mappings mismatch (-want +got):\n%s", prot, diff)
		}
	}
}

func TestMMapValidation(t *testing.T) {
	mm := testMM(t, 64)
	if err := mm.MMap(0x40000, 2*hostarch.PageSize, rw); err != nil {
		t.Fatalf("MMap: %v", err)
	}
	if err := mm.MapImage(Segment{Start: 0x80000, Length: hostarch.PageSize, Perms: hostarch.Read}); err != nil {
		t.Fatalf("MapImage: %v", err)
	}
	before := mm.Mappings()
	free := mm.mf.NumFree()

	for _, tc := range []struct {
		name   string
		start  hostarch.Addr
		length uint64
		prot   uint64
		want   error
	}{
		{"unaligned", 0x10001, 4096, rw, oserr.EINVAL},
		{"zero prot", 0x10000, 4096, 0, oserr.EINVAL},
		{"extra prot bits", 0x10000, 4096, 0x8 | os4.PROT_READ, oserr.EINVAL},
		{"zero length", 0x10000, 0, rw, oserr.EINVAL},
		{"beyond user space", hostarch.MaxUserAddr - hostarch.PageSize, 2 * hostarch.PageSize, rw, oserr.EINVAL},
		{"wraps", ^hostarch.Addr(0) &^ (hostarch.PageSize - 1), 2 * hostarch.PageSize, rw, oserr.EINVAL},
		{"same range", 0x40000, 2 * hostarch.PageSize, rw, oserr.EEXIST},
		{"overlaps tail", 0x41000, 4096, rw, oserr.EEXIST},
		{"overlaps head", 0x3f000, 8192, rw, oserr.EEXIST},
		{"covers", 0x3f000, 4 * hostarch.PageSize, rw, oserr.EEXIST},
		{"rounded length overlaps", 0x3f000, 4097, rw, oserr.EEXIST},
		{"overlaps image", 0x80000, 4096, rw, oserr.EEXIST},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := mm.MMap(tc.start, tc.length, tc.prot); err != tc.want {
				t.Errorf("MMap(%v, %#x, %#x) = %v, want %v", tc.start, tc.length, tc.prot, err, tc.want)
			}
		})
	}
	if diff := cmp.Diff(before, mm.Mappings()); diff != "" {
		t.Errorf("mappings changed by rejected requests (-want +got):\n%s", diff)
	}
	if got := mm.mf.NumFree(); got != free {
		t.Errorf("NumFree = %d after rejected requests, want %d", got, free)
	}
}

func TestMMapAdjacent(t *testing.T) {
	mm := testMM(t, 64)
	for _, start := range []hostarch.Addr{0x10000, 0x12000, 0x11000} {
		if err := mm.MMap(start, 4096, rw); err != nil {
			t.Fatalf("MMap(%v): %v", start, err)
		}
	}
	want := []Mapping{
		anon(0x10000, 0x11000, hostarch.ReadWrite),
		anon(0x11000, 0x12000, hostarch.ReadWrite),
		anon(0x12000, 0x13000, hostarch.ReadWrite),
	}
	if diff := cmp.Diff(want, mm.Mappings()); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func TestMUnmapExactUnion(t *testing.T) {
	for _, tc := range []struct {
		name   string
		start  hostarch.Addr
		length uint64
		ok     bool
	}{
		{"first record", 0x10000, 0x2000, true},
		{"two records", 0x10000, 0x3000, true},
		{"rounded length", 0x12000, 1, true},
		{"across gap", 0x12000, 0x3000, false},
		{"all three with gap", 0x10000, 0x5000, false},
		{"part of record", 0x10000, 0x1000, false},
		{"tail of record", 0x11000, 0x1000, false},
		{"beyond last record", 0x14000, 0x2000, false},
		{"never mapped", 0x30000, 0x1000, false},
		{"unaligned", 0x10800, 0x1000, false},
		{"zero length", 0x10000, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mm := testMM(t, 64)
			// [0x10000,0x12000) [0x12000,0x13000) gap [0x14000,0x15000)
			for _, r := range []struct {
				start  hostarch.Addr
				length uint64
			}{{0x10000, 0x2000}, {0x12000, 0x1000}, {0x14000, 0x1000}} {
				if err := mm.MMap(r.start, r.length, rw); err != nil {
					t.Fatalf("MMap(%v): %v", r.start, err)
				}
			}
			before := mm.Mappings()
			free := mm.mf.NumFree()

			err := mm.MUnmap(tc.start, tc.length)
			if tc.ok {
				if err != nil {
					t.Fatalf("MUnmap(%v, %#x): %v", tc.start, tc.length, err)
				}
				if mm.mf.NumFree() <= free {
					t.Errorf("MUnmap freed no frames")
				}
				for _, m := range mm.Mappings() {
					if m.Range.Overlaps(hostarch.AddrRange{Start: tc.start, End: tc.start + hostarch.Addr(tc.length).MustRoundUp()}) {
						t.Errorf("mapping %v survived MUnmap", m)
					}
				}
				return
			}
			if err != oserr.EINVAL {
				t.Errorf("MUnmap(%v, %#x) = %v, want EINVAL", tc.start, tc.length, err)
			}
			if diff := cmp.Diff(before, mm.Mappings()); diff != "" {
				t.Errorf("mappings changed (-want +got):\n%s", diff)
			}
			if got := mm.mf.NumFree(); got != free {
				t.Errorf("NumFree = %d, want %d", got, free)
			}
		})
	}
}

func TestMUnmapImage(t *testing.T) {
	mm := testMM(t, 16)
	if err := mm.MapImage(Segment{Start: 0x1000, Length: hostarch.PageSize, Perms: hostarch.ReadWrite}); err != nil {
		t.Fatalf("MapImage: %v", err)
	}
	if err := mm.MUnmap(0x1000, hostarch.PageSize); err != oserr.EINVAL {
		t.Errorf("MUnmap of image = %v, want EINVAL", err)
	}
}

func TestMMapOutOfMemoryRollsBack(t *testing.T) {
	// The root table plus one free frame: the data frame can be allocated but
	// the intermediate tables cannot.
	mm := testMM(t, 2)
	if err := mm.MMap(0x10000, 4096, rw); err != oserr.ENOMEM {
		t.Fatalf("MMap = %v, want ENOMEM", err)
	}
	if got := mm.mf.NumFree(); got != 1 {
		t.Errorf("NumFree = %d, want 1", got)
	}
	if got := mm.Mappings(); len(got) != 0 {
		t.Errorf("Mappings = %v, want none", got)
	}

	// Too many pages for the memory file.
	mm = testMM(t, 8)
	if err := mm.MMap(0x10000, 64*hostarch.PageSize, rw); err != oserr.ENOMEM {
		t.Fatalf("MMap = %v, want ENOMEM", err)
	}
	if got := mm.mf.NumFree(); got != 7 {
		t.Errorf("NumFree = %d, want 7", got)
	}
}

func TestMMapPartialTableFailureRollsBack(t *testing.T) {
	// Root plus three frames: two data frames and the middle table fit, the
	// leaf table does not.
	mm := testMM(t, 4)
	if err := mm.MMap(0x10000, 2*hostarch.PageSize, rw); err != oserr.ENOMEM {
		t.Fatalf("MMap = %v, want ENOMEM", err)
	}
	if got := mm.mf.NumFree(); got != 3 {
		t.Errorf("NumFree = %d, want 3", got)
	}
	if got := mm.pt.NumTables(); got != 1 {
		t.Errorf("NumTables = %d, want 1", got)
	}
	// A single page now fits: one data frame and two tables.
	if err := mm.MMap(0x10000, hostarch.PageSize, rw); err != nil {
		t.Fatalf("MMap after rollback: %v", err)
	}
	if err := mm.MUnmap(0x10000, hostarch.PageSize); err != nil {
		t.Fatalf("MUnmap: %v", err)
	}
	if got := mm.mf.NumFree(); got != 3 {
		t.Errorf("NumFree after MUnmap = %d, want 3", got)
	}
}

func TestMapImageData(t *testing.T) {
	mm := testMM(t, 16)
	data := bytes.Repeat([]byte("os4!"), 1500) // Spans two pages.
	if err := mm.MapImage(Segment{Start: 0x1000, Length: 3 * hostarch.PageSize, Perms: hostarch.Read, Data: data}); err != nil {
		t.Fatalf("MapImage: %v", err)
	}
	got := make([]byte, 3*hostarch.PageSize)
	if _, err := mm.IO().CopyInBytes(0x1000, got); err != nil {
		t.Fatalf("CopyInBytes: %v", err)
	}
	if !bytes.Equal(got[:len(data)], data) {
		t.Errorf("segment data mismatch")
	}
	if !bytes.Equal(got[len(data):], make([]byte, len(got)-len(data))) {
		t.Errorf("segment tail is not zero")
	}
	if _, err := mm.IO().CopyOutBytes(0x1000, []byte{1}); !errors.Is(err, oserr.EFAULT) {
		t.Errorf("write to read-only segment: got %v, want EFAULT", err)
	}
	if err := mm.MapImage(Segment{Start: 0x1000, Length: 1, Data: []byte{1, 2}}); err == nil {
		t.Errorf("MapImage accepted data larger than the segment")
	}
}

func TestRelease(t *testing.T) {
	mm := testMM(t, 32)
	if err := mm.MapImage(Segment{Start: 0x1000, Length: hostarch.PageSize, Perms: hostarch.ReadWrite}); err != nil {
		t.Fatalf("MapImage: %v", err)
	}
	if err := mm.MMap(0x40000000, 3*hostarch.PageSize, rw); err != nil {
		t.Fatalf("MMap: %v", err)
	}
	mm.Release()
	if got := mm.mf.NumFree(); got != 32 {
		t.Errorf("NumFree = %d after Release, want 32", got)
	}
	if mm.Token() != 0 {
		t.Errorf("Token is nonzero after Release")
	}
	mm.Release()
}

func TestCopyStraddlesPages(t *testing.T) {
	mm := testMM(t, 16)
	if err := mm.MMap(0x10000, 2*hostarch.PageSize, rw); err != nil {
		t.Fatalf("MMap: %v", err)
	}
	addr := hostarch.Addr(0x11000 - 8)
	in := os4.TimeVal{Sec: 3, Usec: 999999}
	if _, err := marshal.CopyOut(mm.IO(), addr, &in); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	var out os4.TimeVal
	if _, err := marshal.CopyIn(mm.IO(), addr, &out); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if out != in {
		t.Errorf("CopyIn = %+v, want %+v", out, in)
	}

	// A record that runs off the end of the mapping is not written at all.
	edge := hostarch.Addr(0x12000 - 8)
	if _, err := mm.IO().CopyOutBytes(edge, bytes.Repeat([]byte{0xff}, 16)); !errors.Is(err, oserr.EFAULT) {
		t.Fatalf("CopyOutBytes = %v, want EFAULT", err)
	}
	tail := make([]byte, 8)
	if _, err := mm.IO().CopyInBytes(edge, tail); err != nil {
		t.Fatalf("CopyInBytes: %v", err)
	}
	if !bytes.Equal(tail, make([]byte, 8)) {
		t.Errorf("partial write happened: %x", tail)
	}
}

func TestFault(t *testing.T) {
	mm := testMM(t, 4)
	_, err := Translate(mm.mf, mm.Token(), 0x5000, hostarch.Write)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("Translate = %v, want *Fault", err)
	}
	if f.Addr != 0x5000 || f.Access != hostarch.Write {
		t.Errorf("fault = %+v", f)
	}
	if !errors.Is(err, oserr.EFAULT) {
		t.Errorf("fault does not unwrap to EFAULT")
	}
	if _, err := Translate(mm.mf, mm.Token(), hostarch.MaxUserAddr, hostarch.Read); err == nil {
		t.Errorf("Translate accepted a kernel address")
	}
}

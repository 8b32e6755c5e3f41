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

// Package mm provides a memory management subsystem: the per-task set of
// mapping records, and translation of user addresses through page tables.
//
// Lock order:
//
//	MemoryManager.mappingMu
//	  pgalloc.MemoryFile.mu
package mm

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/log"
	"os4.dev/os4/pkg/metric"
	"os4.dev/os4/pkg/sentry/pagetables"
	"os4.dev/os4/pkg/sentry/pgalloc"
)

var (
	mmapMetric = metric.MustCreateNewUint64Metric("/mm/mmap", "Number of mmap requests by result.",
		metric.NewField("result", []string{"ok", "rejected", "nomem"}))
	munmapMetric = metric.MustCreateNewUint64Metric("/mm/munmap", "Number of munmap requests by result.",
		metric.NewField("result", []string{"ok", "rejected"}))
)

// btreeDegree is the degree of the mapping set.
const btreeDegree = 8

// MappingKind distinguishes how a mapping came to exist.
type MappingKind int

const (
	// Image mappings hold a program's segments and stack. They are installed
	// when the task is created and live until it exits.
	Image MappingKind = iota

	// Anonymous mappings are created by mmap and destroyed by munmap.
	Anonymous
)

// String implements fmt.Stringer.String.
func (k MappingKind) String() string {
	switch k {
	case Image:
		return "image"
	case Anonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("MappingKind(%d)", int(k))
	}
}

// Mapping describes one mapping record.
type Mapping struct {
	// Range is the page-aligned virtual range covered.
	Range hostarch.AddrRange

	// Perms are the permissions user code has on the range.
	Perms hostarch.AccessType

	// Kind is the mapping's origin.
	Kind MappingKind
}

// String implements fmt.Stringer.String.
func (m Mapping) String() string {
	return fmt.Sprintf("%v %v %v", m.Range, m.Perms, m.Kind)
}

// mapping is a Mapping plus the frames backing it, one per page in order.
type mapping struct {
	Mapping
	frames []pgalloc.PPN
}

func mappingLess(a, b *mapping) bool {
	return a.Range.Start < b.Range.Start
}

// pivot returns a search key for the mapping starting at addr.
func pivot(addr hostarch.Addr) *mapping {
	return &mapping{Mapping: Mapping{Range: hostarch.AddrRange{Start: addr, End: addr}}}
}

// Segment is an image segment to be installed by MapImage.
type Segment struct {
	// Start is the page-aligned address of the segment.
	Start hostarch.Addr

	// Length is the size of the segment in bytes. It is rounded up to whole
	// pages.
	Length uint64

	// Perms are the segment's permissions.
	Perms hostarch.AccessType

	// Data is copied to the start of the segment. The rest is zero.
	Data []byte
}

// MemoryManager implements a task's virtual address space.
type MemoryManager struct {
	// mf backs every page. mf is immutable.
	mf *pgalloc.MemoryFile

	mappingMu sync.Mutex

	// pt holds the address space's translations. pt is nil after Release.
	//
	// +checklocks:mappingMu
	pt *pagetables.PageTables

	// mappings is the set of mapping records, keyed by start address. No two
	// records overlap.
	//
	// +checklocks:mappingMu
	mappings *btree.BTreeG[*mapping]
}

// NewMemoryManager returns a MemoryManager with an empty address space.
func NewMemoryManager(mf *pgalloc.MemoryFile) (*MemoryManager, error) {
	pt, err := pagetables.New(mf)
	if err != nil {
		return nil, err
	}
	return &MemoryManager{
		mf:       mf,
		pt:       pt,
		mappings: btree.NewG(btreeDegree, mappingLess),
	}, nil
}

// MemoryFile returns the memory file backing mm.
func (mm *MemoryManager) MemoryFile() *pgalloc.MemoryFile {
	return mm.mf
}

// Token returns the page-table identifier of the address space. It changes
// only if the address space is torn down, so callers must not cache it across
// operations that may release mm.
func (mm *MemoryManager) Token() uint64 {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	if mm.pt == nil {
		return 0
	}
	return mm.pt.Token()
}

// MapImage installs an image segment.
func (mm *MemoryManager) MapImage(seg Segment) error {
	if uint64(len(seg.Data)) > seg.Length {
		return fmt.Errorf("segment at %v: %d bytes of data do not fit in %d bytes", seg.Start, len(seg.Data), seg.Length)
	}
	ar, err := userRange(seg.Start, seg.Length)
	if err != nil {
		return fmt.Errorf("segment at %v length %#x: %w", seg.Start, seg.Length, err)
	}
	if !seg.Perms.Any() {
		return fmt.Errorf("segment at %v has no permissions", seg.Start)
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	if mm.overlapsLocked(ar) {
		return fmt.Errorf("segment %v overlaps an existing mapping: %w", ar, oserr.EEXIST)
	}
	m, err := mm.mapLocked(ar, seg.Perms, Image)
	if err != nil {
		return err
	}
	data := seg.Data
	for _, ppn := range m.frames {
		if len(data) == 0 {
			break
		}
		frame, _ := mm.mf.FrameBytes(ppn)
		data = data[copy(frame, data):]
	}
	return nil
}

// MMap creates an anonymous mapping of [start, start+length) with the
// permissions in prot. length is rounded up to whole pages.
//
// In order, the request is rejected with EINVAL if start is not page aligned,
// prot is zero or has bits other than PROT_READ|PROT_WRITE|PROT_EXEC, length
// is zero, or the range leaves user space; and with EEXIST if the range
// overlaps any existing mapping. If frames or page tables run out, ENOMEM is
// returned. In every failure case the address space is unchanged.
func (mm *MemoryManager) MMap(start hostarch.Addr, length uint64, prot uint64) error {
	if !start.IsPageAligned() {
		return mm.rejectMMap(start, length, prot, oserr.EINVAL)
	}
	at, ok := hostarch.AccessTypeFromProt(prot)
	if !ok {
		return mm.rejectMMap(start, length, prot, oserr.EINVAL)
	}
	ar, err := userRange(start, length)
	if err != nil {
		return mm.rejectMMap(start, length, prot, err)
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	if mm.overlapsLocked(ar) {
		return mm.rejectMMap(start, length, prot, oserr.EEXIST)
	}
	if _, err := mm.mapLocked(ar, at, Anonymous); err != nil {
		mmapMetric.Increment("nomem")
		log.Debugf("mmap(%v, %#x, %#x): %v", start, length, prot, err)
		return err
	}
	mmapMetric.Increment("ok")
	return nil
}

func (mm *MemoryManager) rejectMMap(start hostarch.Addr, length, prot uint64, err error) error {
	mmapMetric.Increment("rejected")
	log.Debugf("mmap(%v, %#x, %#x) rejected: %v", start, length, prot, err)
	return err
}

// MUnmap removes the anonymous mappings that exactly cover
// [start, start+length), with length rounded up to whole pages. The range must
// be the union of one or more whole anonymous mapping records with no gaps;
// otherwise EINVAL is returned and nothing changes. Image mappings can never be
// unmapped.
func (mm *MemoryManager) MUnmap(start hostarch.Addr, length uint64) error {
	if !start.IsPageAligned() {
		return mm.rejectMUnmap(start, length, oserr.EINVAL)
	}
	ar, err := userRange(start, length)
	if err != nil {
		return mm.rejectMUnmap(start, length, err)
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	var (
		covered []*mapping
		cursor  = ar.Start
		exact   = true
	)
	mm.mappings.AscendRange(pivot(ar.Start), pivot(ar.End), func(m *mapping) bool {
		if m.Range.Start != cursor || m.Range.End > ar.End || m.Kind != Anonymous {
			exact = false
			return false
		}
		covered = append(covered, m)
		cursor = m.Range.End
		return true
	})
	if !exact || cursor != ar.End {
		return mm.rejectMUnmap(start, length, oserr.EINVAL)
	}
	for _, m := range covered {
		mm.unmapLocked(m)
	}
	munmapMetric.Increment("ok")
	return nil
}

func (mm *MemoryManager) rejectMUnmap(start hostarch.Addr, length uint64, err error) error {
	munmapMetric.Increment("rejected")
	log.Debugf("munmap(%v, %#x) rejected: %v", start, length, err)
	return err
}

// Mappings returns a snapshot of the mapping records in address order.
func (mm *MemoryManager) Mappings() []Mapping {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	ms := make([]Mapping, 0, mm.mappings.Len())
	mm.mappings.Ascend(func(m *mapping) bool {
		ms = append(ms, m.Mapping)
		return true
	})
	return ms
}

// Release tears down the address space, freeing every data frame and every
// page table frame. Release is idempotent.
func (mm *MemoryManager) Release() {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	if mm.pt == nil {
		return
	}
	var all []*mapping
	mm.mappings.Ascend(func(m *mapping) bool {
		all = append(all, m)
		return true
	})
	for _, m := range all {
		mm.unmapLocked(m)
	}
	mm.pt.Release()
	mm.pt = nil
}

// IO returns a CopyContext that reads and writes mm's user memory with user
// permissions enforced.
func (mm *MemoryManager) IO() *IO {
	return &IO{MF: mm.mf, Token: mm.Token()}
}

// userRange validates a user range and rounds its length up to whole pages.
func userRange(start hostarch.Addr, length uint64) (hostarch.AddrRange, error) {
	if length == 0 {
		return hostarch.AddrRange{}, oserr.EINVAL
	}
	rounded, ok := hostarch.PageRoundUp(length)
	if !ok {
		return hostarch.AddrRange{}, oserr.EINVAL
	}
	ar, ok := start.ToRange(rounded)
	if !ok || ar.End > hostarch.MaxUserAddr {
		return hostarch.AddrRange{}, oserr.EINVAL
	}
	return ar, nil
}

// overlapsLocked returns true if ar overlaps any mapping.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) overlapsLocked(ar hostarch.AddrRange) bool {
	overlaps := false
	// Only the mapping with the greatest start below ar.End can overlap.
	mm.mappings.DescendLessOrEqual(pivot(ar.End-1), func(m *mapping) bool {
		overlaps = m.Range.End > ar.Start
		return false
	})
	return overlaps
}

// mapLocked backs ar with fresh frames and records it. Either the whole range
// is mapped or nothing is; on failure every frame taken on the way, page
// table frames included, is back in mm.mf.
//
// Preconditions:
//   - mm.mappingMu must be locked.
//   - mm.pt != nil.
//   - ar is page aligned and overlaps no mapping.
func (mm *MemoryManager) mapLocked(ar hostarch.AddrRange, at hostarch.AccessType, kind MappingKind) (*mapping, error) {
	if mm.pt == nil {
		panic("mapping into a released address space")
	}
	frames, err := mm.mf.Allocate(int(ar.NumPages()))
	if err != nil {
		return nil, err
	}
	flags := pagetables.FlagsFromAccess(at)
	first := ar.Start.PageNumber()
	for i, ppn := range frames {
		if err := mm.pt.Map(first+uint64(i), ppn, flags); err != nil {
			for j := 0; j < i; j++ {
				mm.pt.Unmap(first + uint64(j))
			}
			mm.mf.Free(frames...)
			return nil, err
		}
	}
	m := &mapping{
		Mapping: Mapping{Range: ar, Perms: at, Kind: kind},
		frames:  frames,
	}
	mm.mappings.ReplaceOrInsert(m)
	return m, nil
}

// unmapLocked removes m's translations, frees its frames and deletes the
// record.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) unmapLocked(m *mapping) {
	first := m.Range.Start.PageNumber()
	for i, want := range m.frames {
		if got, ok := mm.pt.Unmap(first + uint64(i)); !ok || got != want {
			panic(fmt.Sprintf("mapping %v: page %d maps %v (present=%t), want %v", m.Mapping, i, got, ok, want))
		}
	}
	mm.mf.Free(m.frames...)
	mm.mappings.Delete(m)
}

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

// Package pagetables provides a generic implementation of Sv39 page tables.
//
// Tables live in frames of a pgalloc.MemoryFile, exactly as the MMU would see
// them: each table is one 4 KiB frame holding 512 little-endian 8-byte entries.
// A virtual page number is split into three 9-bit indices, root first.
package pagetables

import (
	"fmt"

	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/sentry/pgalloc"
)

// PTEFlags are the low bits of a page table entry.
type PTEFlags uint64

// Entry flag bits.
const (
	Valid PTEFlags = 1 << iota
	Readable
	Writable
	Executable
	User
	Global
	Accessed
	Dirty

	flagsMask PTEFlags = 1<<8 - 1
)

const (
	entriesPerTable = 512
	entrySize       = 8
	levels          = 3
	ppnShift        = 10
	ppnMask         = 1<<44 - 1

	// satpModeSv39 is the MODE field of satp selecting Sv39 translation.
	satpModeSv39  = 8
	satpModeShift = 60

	// MaxVPN is the first virtual page number Sv39 cannot express.
	MaxVPN = 1 << (9 * levels)
)

// String returns the flags in the usual "VRWXUGAD" notation.
func (f PTEFlags) String() string {
	const names = "VRWXUGAD"
	b := []byte("--------")
	for i := 0; i < len(names); i++ {
		if f&(1<<i) != 0 {
			b[i] = names[i]
		}
	}
	return string(b)
}

// FlagsFromAccess returns the leaf flags granting at to user mode.
func FlagsFromAccess(at hostarch.AccessType) PTEFlags {
	f := Valid | User
	if at.Read {
		f |= Readable
	}
	if at.Write {
		f |= Writable
	}
	if at.Execute {
		f |= Executable
	}
	return f
}

// PTE is a page table entry.
type PTE uint64

// NewPTE returns an entry pointing at ppn with the given flags.
func NewPTE(ppn pgalloc.PPN, flags PTEFlags) PTE {
	return PTE(uint64(ppn)<<ppnShift | uint64(flags&flagsMask))
}

// PPN returns the physical page the entry points at.
func (p PTE) PPN() pgalloc.PPN {
	return pgalloc.PPN((uint64(p) >> ppnShift) & ppnMask)
}

// Flags returns the entry's flags.
func (p PTE) Flags() PTEFlags {
	return PTEFlags(p) & flagsMask
}

// Valid returns true if the V bit is set.
func (p PTE) Valid() bool {
	return p.Flags()&Valid != 0
}

// IsLeaf returns true if the entry maps a page rather than pointing at the
// next-level table.
func (p PTE) IsLeaf() bool {
	return p.Flags()&(Readable|Writable|Executable) != 0
}

// Permits returns true if the entry is a valid user leaf that allows at.
func (p PTE) Permits(at hostarch.AccessType) bool {
	f := p.Flags()
	if f&Valid == 0 || f&User == 0 || !p.IsLeaf() {
		return false
	}
	if at.Read && f&Readable == 0 {
		return false
	}
	if at.Write && f&Writable == 0 {
		return false
	}
	if at.Execute && f&Executable == 0 {
		return false
	}
	return true
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	return fmt.Sprintf("%v:%v", p.PPN(), p.Flags())
}

// PageTables is a page table hierarchy owned by one address space.
type PageTables struct {
	mf *pgalloc.MemoryFile

	// root is the top-level table.
	root pgalloc.PPN

	// tables are all live table frames, root included. Intermediate tables
	// are freed as soon as they hold no entries; Release frees the rest.
	tables map[pgalloc.PPN]struct{}
}

// New returns page tables with an empty root table.
func New(mf *pgalloc.MemoryFile) (*PageTables, error) {
	root, err := mf.AllocateOne()
	if err != nil {
		return nil, err
	}
	return &PageTables{
		mf:     mf,
		root:   root,
		tables: map[pgalloc.PPN]struct{}{root: {}},
	}, nil
}

// Token returns the satp value that selects these page tables. It is the
// page-table identifier handed to address translation.
func (p *PageTables) Token() uint64 {
	return satpModeSv39<<satpModeShift | uint64(p.root)
}

// Map installs a leaf entry for vpn. Intermediate tables are allocated as
// needed; if that fails, ENOMEM is returned, no leaf is installed and any
// table allocated on the way is freed again. Mapping an already mapped page
// returns EEXIST.
func (p *PageTables) Map(vpn uint64, ppn pgalloc.PPN, flags PTEFlags) error {
	if vpn >= MaxVPN {
		return oserr.EINVAL
	}
	slot, err := p.walk(vpn, true)
	if err != nil {
		p.prune(vpn)
		return err
	}
	if readEntry(slot).Valid() {
		return oserr.EEXIST
	}
	writeEntry(slot, NewPTE(ppn, flags|Valid))
	return nil
}

// Unmap clears the leaf entry for vpn and returns the frame it pointed at.
// Intermediate tables left empty are freed.
func (p *PageTables) Unmap(vpn uint64) (pgalloc.PPN, bool) {
	if vpn >= MaxVPN {
		return 0, false
	}
	slot, err := p.walk(vpn, false)
	if err != nil || slot == nil {
		return 0, false
	}
	pte := readEntry(slot)
	if !pte.Valid() {
		return 0, false
	}
	writeEntry(slot, 0)
	p.prune(vpn)
	return pte.PPN(), true
}

// Lookup returns the leaf entry for vpn.
func (p *PageTables) Lookup(vpn uint64) (PTE, bool) {
	return Walk(p.mf, p.Token(), vpn)
}

// Release frees every table frame. Leaf frames are owned by the caller and are
// not touched.
func (p *PageTables) Release() {
	for ppn := range p.tables {
		p.mf.Free(ppn)
	}
	p.tables = nil
}

// NumTables returns the number of table frames in use, root included.
func (p *PageTables) NumTables() int {
	return len(p.tables)
}

// prune frees the intermediate tables on the path to vpn that hold no valid
// entries, deepest first. The root is never freed.
func (p *PageTables) prune(vpn uint64) {
	// parents[l] is the frame of the level l table on the path to vpn.
	var parents [levels - 1][]byte
	var children [levels - 1]pgalloc.PPN
	ppn := p.root
	depth := 0
	for level := 0; level < levels-1; level++ {
		frame, ok := p.mf.FrameBytes(ppn)
		if !ok {
			panic(fmt.Sprintf("page table frame %v is not allocated", ppn))
		}
		pte := readEntry(entrySlot(frame, index(vpn, level)))
		if !pte.Valid() {
			break
		}
		parents[level] = frame
		children[level] = pte.PPN()
		ppn = pte.PPN()
		depth++
	}
	for level := depth - 1; level >= 0; level-- {
		frame, ok := p.mf.FrameBytes(children[level])
		if !ok {
			panic(fmt.Sprintf("page table frame %v is not allocated", children[level]))
		}
		if !emptyTable(frame) {
			return
		}
		writeEntry(entrySlot(parents[level], index(vpn, level)), 0)
		delete(p.tables, children[level])
		p.mf.Free(children[level])
	}
}

// emptyTable returns true if frame holds no valid entry.
func emptyTable(frame []byte) bool {
	for i := uint64(0); i < entriesPerTable; i++ {
		if readEntry(entrySlot(frame, i)).Valid() {
			return false
		}
	}
	return true
}

// walk returns the 8-byte slot of the leaf entry for vpn. If create is false
// and an intermediate table is missing, walk returns a nil slot.
func (p *PageTables) walk(vpn uint64, create bool) ([]byte, error) {
	ppn := p.root
	for level := 0; level < levels-1; level++ {
		frame, ok := p.mf.FrameBytes(ppn)
		if !ok {
			panic(fmt.Sprintf("page table frame %v is not allocated", ppn))
		}
		slot := entrySlot(frame, index(vpn, level))
		pte := readEntry(slot)
		switch {
		case pte.Valid() && pte.IsLeaf():
			// Superpages are never installed by Map.
			panic(fmt.Sprintf("unexpected superpage entry %v for vpn %#x", pte, vpn))
		case !pte.Valid():
			if !create {
				return nil, nil
			}
			next, err := p.mf.AllocateOne()
			if err != nil {
				return nil, err
			}
			p.tables[next] = struct{}{}
			pte = NewPTE(next, Valid)
			writeEntry(slot, pte)
		}
		ppn = pte.PPN()
	}
	frame, ok := p.mf.FrameBytes(ppn)
	if !ok {
		panic(fmt.Sprintf("page table frame %v is not allocated", ppn))
	}
	return entrySlot(frame, index(vpn, levels-1)), nil
}

// Walk translates vpn through the page tables selected by token, reading
// tables straight out of mf. It returns the leaf entry, or false if the walk
// hits an invalid entry or a frame that is not a live table.
func Walk(mf *pgalloc.MemoryFile, token uint64, vpn uint64) (PTE, bool) {
	if token>>satpModeShift != satpModeSv39 || vpn >= MaxVPN {
		return 0, false
	}
	ppn := pgalloc.PPN(token & ppnMask)
	for level := 0; level < levels; level++ {
		frame, ok := mf.FrameBytes(ppn)
		if !ok {
			return 0, false
		}
		pte := readEntry(entrySlot(frame, index(vpn, level)))
		if !pte.Valid() {
			return 0, false
		}
		if level == levels-1 {
			return pte, pte.IsLeaf()
		}
		if pte.IsLeaf() {
			return 0, false
		}
		ppn = pte.PPN()
	}
	panic("unreachable")
}

// index returns the table index of vpn at the given level, 0 being the root.
func index(vpn uint64, level int) uint64 {
	shift := 9 * uint(levels-1-level)
	return (vpn >> shift) & (entriesPerTable - 1)
}

func entrySlot(frame []byte, i uint64) []byte {
	return frame[i*entrySize : (i+1)*entrySize]
}

func readEntry(slot []byte) PTE {
	return PTE(hostarch.ByteOrder.Uint64(slot))
}

func writeEntry(slot []byte, pte PTE) {
	hostarch.ByteOrder.PutUint64(slot, uint64(pte))
}

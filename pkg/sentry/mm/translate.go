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

package mm

import (
	"fmt"

	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/sentry/pagetables"
	"os4.dev/os4/pkg/sentry/pgalloc"
)

// Fault is returned when a user address cannot be translated: it is unmapped,
// outside user space, or mapped without the required permission.
type Fault struct {
	// Addr is the first address that failed to translate.
	Addr hostarch.Addr

	// Access is the access that was attempted.
	Access hostarch.AccessType
}

// Error implements error.Error.
func (f *Fault) Error() string {
	return fmt.Sprintf("page fault at %v (%v access)", f.Addr, f.Access)
}

// Unwrap returns EFAULT, so that errors.Is(f, oserr.EFAULT) holds.
func (f *Fault) Unwrap() error {
	return oserr.EFAULT
}

// Translate returns the kernel view of the page containing addr, from addr to
// the end of the page, in the address space selected by token. The page must
// be mapped for user access with at least the permissions in at.
func Translate(mf *pgalloc.MemoryFile, token uint64, addr hostarch.Addr, at hostarch.AccessType) ([]byte, error) {
	if addr >= hostarch.MaxUserAddr {
		return nil, &Fault{Addr: addr, Access: at}
	}
	pte, ok := pagetables.Walk(mf, token, addr.PageNumber())
	if !ok || !pte.Permits(at) {
		return nil, &Fault{Addr: addr, Access: at}
	}
	frame, ok := mf.FrameBytes(pte.PPN())
	if !ok {
		panic(fmt.Sprintf("page table entry %v for %v points at a free frame", pte, addr))
	}
	return frame[addr.PageOffset():], nil
}

// TranslateRange translates [addr, addr+length) page by page. The returned
// slices are in address order and their lengths sum to length. If any page
// fails to translate, no slices are returned.
func TranslateRange(mf *pgalloc.MemoryFile, token uint64, addr hostarch.Addr, length uint64, at hostarch.AccessType) ([][]byte, error) {
	if _, ok := addr.AddLength(length); !ok {
		return nil, &Fault{Addr: addr, Access: at}
	}
	var bufs [][]byte
	for length > 0 {
		b, err := Translate(mf, token, addr, at)
		if err != nil {
			return nil, err
		}
		if uint64(len(b)) > length {
			b = b[:length]
		}
		bufs = append(bufs, b)
		addr += hostarch.Addr(len(b))
		length -= uint64(len(b))
	}
	return bufs, nil
}

// IO implements marshal.CopyContext for one address space, with user
// permissions enforced as the MMU would. Copies are all or nothing: a range
// that does not fully translate is not touched.
type IO struct {
	// MF is the memory backing the address space.
	MF *pgalloc.MemoryFile

	// Token selects the address space.
	Token uint64
}

// CopyOutBytes implements marshal.CopyContext.CopyOutBytes. The destination
// must be user-writable.
func (io *IO) CopyOutBytes(addr hostarch.Addr, src []byte) (int, error) {
	bufs, err := TranslateRange(io.MF, io.Token, addr, uint64(len(src)), hostarch.Write)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bufs {
		n += copy(b, src[n:])
	}
	return n, nil
}

// CopyInBytes implements marshal.CopyContext.CopyInBytes. The source must be
// user-readable.
func (io *IO) CopyInBytes(addr hostarch.Addr, dst []byte) (int, error) {
	bufs, err := TranslateRange(io.MF, io.Token, addr, uint64(len(dst)), hostarch.Read)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bufs {
		n += copy(dst[n:], b)
	}
	return n, nil
}

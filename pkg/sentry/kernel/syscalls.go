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

package kernel

import (
	"fmt"

	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/sentry/arch"
)

// maxSyscallNum is the size of the dense lookup slice. Syscalls at or above it
// are only reachable through the map.
const maxSyscallNum = os4.MaxSyscallNum

// SyscallFn is a syscall implementation.
//
// A non-nil error is reported to user space as -1. An error wrapping
// *mm.Fault kills the calling task instead.
type SyscallFn func(t *Task, args arch.SyscallArguments) (uintptr, error)

// MissingFn is a syscall to be called when an implementation is missing.
type MissingFn func(t *Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error)

// SyscallSupportLevel is a syscall support levels.
type SyscallSupportLevel int

// String returns a human readable representation of the support level.
func (l SyscallSupportLevel) String() string {
	switch l {
	case SupportUnimplemented:
		return "Unimplemented"
	case SupportPartial:
		return "Partial Support"
	case SupportFull:
		return "Full Support"
	default:
		return "Undocumented"
	}
}

const (
	// SupportUndocumented indicates the syscall is not documented yet.
	SupportUndocumented = iota

	// SupportUnimplemented indicates the syscall is unimplemented.
	SupportUnimplemented

	// SupportPartial indicates the syscall is partially supported.
	SupportPartial

	// SupportFull indicates the syscall is fully supported.
	SupportFull
)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn

	// SupportLevel is the level of support implemented.
	SupportLevel SyscallSupportLevel

	// Note describes the compatibility of the syscall.
	Note string
}

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Name is the table name, reported in logs.
	Name string

	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// lookup is a fixed-size array that holds the syscalls (indexed by
	// their numbers). It is used for fast look ups.
	lookup []SyscallFn

	// Missing is the syscall to be called when there is no implementation
	// in Table. If nil, the kernel's default handling applies.
	Missing MissingFn
}

// Init initializes the syscall table. It must be called before Lookup.
func (s *SyscallTable) Init() {
	if s.Table == nil {
		// Ensure non-nil lookup table.
		s.Table = make(map[uintptr]Syscall)
	}

	max := s.MaxSysno() // Checked by Validate.

	// Initialize the fast-lookup table.
	s.lookup = make([]SyscallFn, max+1)
	for num, sc := range s.Table {
		s.lookup[num] = sc.Fn
	}
}

// Validate returns an error if the table cannot be used for dispatch.
func (s *SyscallTable) Validate() error {
	if max := s.MaxSysno(); max >= maxSyscallNum {
		return fmt.Errorf("syscall table %q has syscall %d, limit is %d", s.Name, max, maxSyscallNum-1)
	}
	for num, sc := range s.Table {
		if sc.Fn == nil {
			return fmt.Errorf("syscall table %q: syscall %d (%s) has no implementation", s.Name, num, sc.Name)
		}
	}
	return nil
}

// MaxSysno returns the largest system call number.
func (s *SyscallTable) MaxSysno() (max uintptr) {
	for num := range s.Table {
		if num > max {
			max = num
		}
	}
	return max
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	if sysno < uintptr(len(s.lookup)) {
		return s.lookup[sysno]
	}

	return nil
}

// mapLookup is similar to Lookup, except that it only uses the syscall table,
// that is, it skips the fast look array. This is available for benchmarking.
func (s *SyscallTable) mapLookup(sysno uintptr) SyscallFn {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Fn
	}
	return nil
}

// LookupName looks up a syscall name.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return fmt.Sprintf("sys_%d", sysno) // Unlikely.
}

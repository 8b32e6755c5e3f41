// Copyright 2018 The gVisor Authors.
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
	"testing"

	"os4.dev/os4/pkg/sentry/arch"
)

const (
	maxTestSyscall = 400
)

func createSyscallTable() *SyscallTable {
	m := make(map[uintptr]Syscall)
	for i := uintptr(0); i <= maxTestSyscall; i++ {
		j := i
		m[i] = Syscall{
			Fn: func(*Task, arch.SyscallArguments) (uintptr, error) {
				return j, nil
			},
		}
	}

	s := &SyscallTable{
		Name:  "test",
		Table: m,
	}
	s.Init()
	return s
}

func TestTable(t *testing.T) {
	table := createSyscallTable()

	// Go through all functions and check that they return the right value.
	for i := uintptr(0); i < maxTestSyscall; i++ {
		fn := table.Lookup(i)
		if fn == nil {
			t.Errorf("Syscall %v is set to nil", i)
			continue
		}

		v, _ := fn(nil, arch.SyscallArguments{})
		if v != i {
			t.Errorf("Wrong return value for syscall %v: expected %v, got %v", i, i, v)
		}
	}

	// Check that values outside the range return nil.
	for i := uintptr(maxTestSyscall + 1); i < maxTestSyscall+100; i++ {
		fn := table.Lookup(i)
		if fn != nil {
			t.Errorf("Syscall %v is not nil: %v", i, fn)
			continue
		}
	}
}

func TestTableValidate(t *testing.T) {
	if err := createSyscallTable().Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	tooBig := &SyscallTable{Name: "big", Table: map[uintptr]Syscall{
		maxSyscallNum: {Name: "big", Fn: func(*Task, arch.SyscallArguments) (uintptr, error) { return 0, nil }},
	}}
	if err := tooBig.Validate(); err == nil {
		t.Errorf("Validate accepted syscall %d", maxSyscallNum)
	}
	noFn := &SyscallTable{Name: "nofn", Table: map[uintptr]Syscall{1: {Name: "nofn"}}}
	if err := noFn.Validate(); err == nil {
		t.Errorf("Validate accepted a syscall with no implementation")
	}
}

func TestLookupName(t *testing.T) {
	s := &SyscallTable{Table: map[uintptr]Syscall{64: {Name: "write"}}}
	if got := s.LookupName(64); got != "write" {
		t.Errorf("LookupName(64) = %q", got)
	}
	if got := s.LookupName(65); got != "sys_65" {
		t.Errorf("LookupName(65) = %q", got)
	}
}

func BenchmarkTableLookup(b *testing.B) {
	table := createSyscallTable()

	b.ResetTimer()

	j := uintptr(0)
	for i := 0; i < b.N; i++ {
		table.Lookup(j)
		j = (j + 1) % 310
	}
}

func BenchmarkTableMapLookup(b *testing.B) {
	table := createSyscallTable()

	b.ResetTimer()

	j := uintptr(0)
	for i := 0; i < b.N; i++ {
		table.mapLookup(j)
		j = (j + 1) % 310
	}
}

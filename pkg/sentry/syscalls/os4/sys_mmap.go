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

package os4

import (
	"os4.dev/os4/pkg/sentry/arch"
	"os4.dev/os4/pkg/sentry/kernel"
)

// Mmap implements os4 syscall mmap.
func Mmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	length := args[1].Uint64()
	prot := args[2].Uint64()

	if err := t.MemoryManager().MMap(addr, length, prot); err != nil {
		return 0, err
	}
	return 0, nil
}

// Munmap implements os4 syscall munmap.
func Munmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	return 0, t.MemoryManager().MUnmap(args[0].Pointer(), args[1].Uint64())
}

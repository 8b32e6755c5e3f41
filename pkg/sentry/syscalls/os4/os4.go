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

// Package os4 provides the syscall table of the os4 kernel and the
// implementations of its syscalls.
package os4

import (
	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/sentry/kernel"
	"os4.dev/os4/pkg/sentry/syscalls"
)

// Table is the os4 syscall table. Syscall numbers follow RISC-V Linux.
var Table = &kernel.SyscallTable{
	Name: "os4",
	Table: map[uintptr]kernel.Syscall{
		os4.SYS_WRITE:        syscalls.PartiallySupported("write", Write, "Only fd 1, the console, is writable."),
		os4.SYS_EXIT:         syscalls.Supported("exit", Exit),
		os4.SYS_YIELD:        syscalls.Supported("yield", SchedYield),
		os4.SYS_SET_PRIORITY: syscalls.PartiallySupported("set_priority", SetPriority, "Priority scheduling is not supported; always fails."),
		os4.SYS_GET_TIME:     syscalls.Supported("get_time", GetTime),
		os4.SYS_MUNMAP:       syscalls.PartiallySupported("munmap", Munmap, "Only whole anonymous mappings can be unmapped."),
		os4.SYS_MMAP:         syscalls.PartiallySupported("mmap", Mmap, "Only fixed anonymous mappings are supported."),
		os4.SYS_TASK_INFO:    syscalls.Supported("task_info", TaskInfo),
	},
}

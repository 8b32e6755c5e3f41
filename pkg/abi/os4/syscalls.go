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

// Package os4 contains the constants and types needed to interface with user
// programs of the os4 kernel: syscall numbers and the records syscalls write
// into user memory.
package os4

// Syscall numbers, as placed in a7 by user space. These follow the RISC-V
// Linux numbering so existing user runtimes can target the kernel.
const (
	SYS_WRITE        = 64
	SYS_EXIT         = 93
	SYS_YIELD        = 124
	SYS_SET_PRIORITY = 140
	SYS_GET_TIME     = 169
	SYS_MUNMAP       = 215
	SYS_MMAP         = 222
	SYS_TASK_INFO    = 410
)

// MaxSyscallNum bounds syscall numbers; TaskInfo.SyscallTimes has this many
// entries.
const MaxSyscallNum = 500

// SyscallIndex is a dense index assigned to every supported syscall. Per-task
// syscall counters are indexed by SyscallIndex.
type SyscallIndex uint8

// Supported syscalls, densely numbered.
const (
	SysWrite SyscallIndex = iota
	SysExit
	SysYield
	SysSetPriority
	SysGetTime
	SysMunmap
	SysMmap
	SysTaskInfo

	// NumSyscalls is the number of supported syscalls.
	NumSyscalls
)

// sysnos maps SyscallIndex to syscall number.
var sysnos = [NumSyscalls]uintptr{
	SysWrite:       SYS_WRITE,
	SysExit:        SYS_EXIT,
	SysYield:       SYS_YIELD,
	SysSetPriority: SYS_SET_PRIORITY,
	SysGetTime:     SYS_GET_TIME,
	SysMunmap:      SYS_MUNMAP,
	SysMmap:        SYS_MMAP,
	SysTaskInfo:    SYS_TASK_INFO,
}

var names = [NumSyscalls]string{
	SysWrite:       "write",
	SysExit:        "exit",
	SysYield:       "yield",
	SysSetPriority: "set_priority",
	SysGetTime:     "get_time",
	SysMunmap:      "munmap",
	SysMmap:        "mmap",
	SysTaskInfo:    "task_info",
}

// indices maps syscall number to SyscallIndex+1; zero means unsupported.
var indices = func() (tab [MaxSyscallNum]uint8) {
	for idx, no := range sysnos {
		tab[no] = uint8(idx) + 1
	}
	return tab
}()

// Sysno returns the syscall number of idx.
func (idx SyscallIndex) Sysno() uintptr {
	return sysnos[idx]
}

// String returns the syscall name.
func (idx SyscallIndex) String() string {
	if idx >= NumSyscalls {
		return "unknown"
	}
	return names[idx]
}

// IndexOf returns the dense index of syscall number sysno. ok is false if
// sysno is not a supported syscall.
func IndexOf(sysno uintptr) (idx SyscallIndex, ok bool) {
	if sysno >= MaxSyscallNum || indices[sysno] == 0 {
		return 0, false
	}
	return SyscallIndex(indices[sysno] - 1), true
}

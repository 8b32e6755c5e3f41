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

// Package ulib is the user-space runtime of os4 programs: thin wrappers that
// place arguments in registers, trap, and decode records the kernel wrote into
// user memory.
//
// Records are passed through the program's own stack, so every wrapper
// restores the stack pointer before returning.
package ulib

import (
	"fmt"

	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/sentry/kernel"
)

// Stdout is the console file descriptor.
const Stdout = 1

// Exit terminates the calling task with code. It does not return.
func Exit(uc *kernel.UserContext, code int32) {
	uc.Syscall(os4.SYS_EXIT, uintptr(code))
	panic("unreachable")
}

// Yield gives up the CPU.
func Yield(uc *kernel.UserContext) int64 {
	return uc.Syscall(os4.SYS_YIELD)
}

// GetTimeAt asks the kernel to write the time to addr.
func GetTimeAt(uc *kernel.UserContext, addr hostarch.Addr) int64 {
	return uc.Syscall(os4.SYS_GET_TIME, uintptr(addr), 0)
}

// GetTime returns the time since boot.
func GetTime(uc *kernel.UserContext) (os4.TimeVal, int64) {
	var tv os4.TimeVal
	sp := uc.SP()
	addr := uc.Alloca(os4.SizeOfTimeVal)
	rv := GetTimeAt(uc, addr)
	if rv == 0 {
		buf := make([]byte, os4.SizeOfTimeVal)
		uc.Load(addr, buf)
		tv.UnmarshalBytes(buf)
	}
	uc.SetSP(sp)
	return tv, rv
}

// GetTimeMillis returns the milliseconds since boot, or -1.
func GetTimeMillis(uc *kernel.UserContext) int64 {
	tv, rv := GetTime(uc)
	if rv != 0 {
		return -1
	}
	return int64(tv.Sec*1000 + tv.Usec/1000)
}

// Sleep yields until at least ms milliseconds have passed.
func Sleep(uc *kernel.UserContext, ms int64) {
	deadline := GetTimeMillis(uc) + ms
	for GetTimeMillis(uc) < deadline {
		Yield(uc)
	}
}

// SetPriority requests a scheduling priority.
func SetPriority(uc *kernel.UserContext, prio int64) int64 {
	return uc.Syscall(os4.SYS_SET_PRIORITY, uintptr(prio))
}

// Mmap maps [start, start+length) with protection prot.
func Mmap(uc *kernel.UserContext, start hostarch.Addr, length uint64, prot uint64) int64 {
	return uc.Syscall(os4.SYS_MMAP, uintptr(start), uintptr(length), uintptr(prot))
}

// Munmap unmaps [start, start+length).
func Munmap(uc *kernel.UserContext, start hostarch.Addr, length uint64) int64 {
	return uc.Syscall(os4.SYS_MUNMAP, uintptr(start), uintptr(length))
}

// TaskInfoAt asks the kernel to write the caller's TaskInfo to addr.
func TaskInfoAt(uc *kernel.UserContext, addr hostarch.Addr) int64 {
	return uc.Syscall(os4.SYS_TASK_INFO, uintptr(addr))
}

// TaskInfo returns the caller's TaskInfo.
func TaskInfo(uc *kernel.UserContext) (os4.TaskInfo, int64) {
	var info os4.TaskInfo
	sp := uc.SP()
	addr := uc.Alloca(os4.SizeOfTaskInfo)
	rv := TaskInfoAt(uc, addr)
	if rv == 0 {
		buf := make([]byte, os4.SizeOfTaskInfo)
		uc.Load(addr, buf)
		info.UnmarshalBytes(buf)
	}
	uc.SetSP(sp)
	return info, rv
}

// Write writes n bytes at addr to fd.
func Write(uc *kernel.UserContext, fd int32, addr hostarch.Addr, n uint64) int64 {
	return uc.Syscall(os4.SYS_WRITE, uintptr(fd), uintptr(addr), uintptr(n))
}

// Print writes s to the console.
func Print(uc *kernel.UserContext, s string) int64 {
	if len(s) == 0 {
		return 0
	}
	sp := uc.SP()
	addr := uc.Alloca(uint64(len(s)))
	uc.Store(addr, []byte(s))
	rv := Write(uc, Stdout, addr, uint64(len(s)))
	uc.SetSP(sp)
	return rv
}

// Println formats its arguments like fmt.Sprintf and writes the result and a
// newline to the console.
func Println(uc *kernel.UserContext, format string, v ...any) int64 {
	return Print(uc, fmt.Sprintf(format, v...)+"\n")
}

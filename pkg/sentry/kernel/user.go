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
	"errors"
	"fmt"

	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/sentry/arch"
	"os4.dev/os4/pkg/sentry/mm"
)

// Program is the user-mode code of a task. Its return value is the task's
// exit code, as if it had called exit.
//
// A panic in a Program kills only its task, with ExitCodeFault. A panic
// raised inside the kernel on the task's behalf, during a syscall or a user
// memory access, is a kernel bug and crashes the process.
type Program func(uc *UserContext) int32

// stackAlign is the alignment of Alloca'd objects.
const stackAlign = 16

// UserContext is what a Program sees of the machine: the syscall instruction
// and loads and stores through its own page tables. A load or store that
// faults kills the task with ExitCodeFault, as the trap handler would.
type UserContext struct {
	t *Task

	// sp is the stack pointer. Alloca moves it down.
	sp hostarch.Addr
}

// Name returns the task's name.
func (uc *UserContext) Name() string {
	return uc.t.name
}

// Syscall traps into the kernel with syscall sysno and up to six arguments,
// and returns a0.
func (uc *UserContext) Syscall(sysno uintptr, args ...uintptr) int64 {
	return arch.SignedReturn(uc.t.Syscall(sysno, arch.MakeArgs(args...)))
}

// Load reads len(dst) bytes of user memory at addr.
func (uc *UserContext) Load(addr hostarch.Addr, dst []byte) {
	uc.t.inKernel = true
	_, err := uc.t.IO().CopyInBytes(addr, dst)
	uc.t.inKernel = false
	if err != nil {
		uc.faulted(err)
	}
}

// Store writes src to user memory at addr.
func (uc *UserContext) Store(addr hostarch.Addr, src []byte) {
	uc.t.inKernel = true
	_, err := uc.t.IO().CopyOutBytes(addr, src)
	uc.t.inKernel = false
	if err != nil {
		uc.faulted(err)
	}
}

// Alloca reserves n bytes on the user stack and returns their address.
// Running off the bottom of the stack faults.
func (uc *UserContext) Alloca(n uint64) hostarch.Addr {
	size, ok := hostarch.Addr(n).AddLength(stackAlign - 1)
	bottom := UserStackTop - UserStackSize
	size &^= stackAlign - 1
	if !ok || uc.sp-bottom < size {
		uc.t.fault(&mm.Fault{Addr: bottom - 1, Access: hostarch.Write})
	}
	uc.sp -= size
	return uc.sp
}

// SP returns the stack pointer.
func (uc *UserContext) SP() hostarch.Addr {
	return uc.sp
}

// SetSP sets the stack pointer, releasing everything Alloca'd since SP
// returned sp.
func (uc *UserContext) SetSP(sp hostarch.Addr) {
	if sp < uc.sp || sp > UserStackTop {
		panic(fmt.Sprintf("stack pointer %v outside [%v, %v]", sp, uc.sp, UserStackTop))
	}
	uc.sp = sp
}

func (uc *UserContext) faulted(err error) {
	var f *mm.Fault
	if !errors.As(err, &f) {
		panic("user memory access failed without a fault: " + err.Error())
	}
	uc.t.fault(f)
}

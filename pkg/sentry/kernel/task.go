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
	"fmt"

	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/sentry/mm"
)

// Task represents a user task.
//
// Apart from status, a task's mutable state is only touched by its own
// goroutine while it holds the CPU, or by the goroutine handing the CPU to it
// before the hand-off. Handlers reach it only through the *Task they are
// called with.
type Task struct {
	// k is the owning Kernel. k is immutable.
	k *Kernel

	// id and name identify the task. They are immutable.
	id   int
	name string

	// program is the code the task runs. It is immutable.
	program Program

	// wake receives a value when the task is given the CPU.
	wake chan struct{}

	// status is the scheduling state.
	//
	// +checklocks:k.mu
	status os4.TaskStatus

	// mm is the task's address space.
	mm *mm.MemoryManager

	// syscallCounts counts invocations of each supported syscall, by dense
	// index.
	syscallCounts [os4.NumSyscalls]uint32

	// hasRun is set when the task is first given the CPU, at clock time
	// firstRun.
	hasRun   bool
	firstRun uint64

	// sliceStart is the clock time at which the task's current time slice
	// began.
	sliceStart uint64

	// exitCode is valid once status is Exited.
	exitCode int32

	// inKernel is set while t's goroutine runs kernel code on t's behalf.
	// Only t's goroutine accesses it.
	inKernel bool
}

// ID returns the task's ID, unique within its kernel.
func (t *Task) ID() int {
	return t.id
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// String implements fmt.Stringer.String.
func (t *Task) String() string {
	return fmt.Sprintf("%d:%s", t.id, t.name)
}

// Kernel returns the task's kernel.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// MemoryManager returns the task's address space.
func (t *Task) MemoryManager() *mm.MemoryManager {
	return t.mm
}

// Status returns the task's scheduling state. Called by the task itself, it
// is always Running.
func (t *Task) Status() os4.TaskStatus {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.status
}

// ExitCode returns the task's exit code. It is meaningful only once the task
// has exited.
func (t *Task) ExitCode() int32 {
	return t.exitCode
}

// UserToken returns the page-table identifier of the task's address space. It
// is read afresh on every call.
func (t *Task) UserToken() uint64 {
	return t.mm.Token()
}

// IO returns a CopyContext for the task's user memory, with user permissions
// enforced.
func (t *Task) IO() *mm.IO {
	return &mm.IO{MF: t.k.mf, Token: t.UserToken()}
}

// SyscallCount returns the number of times the task has invoked the syscall
// idx.
func (t *Task) SyscallCount(idx os4.SyscallIndex) uint32 {
	return t.syscallCounts[idx]
}

// SyscallCounts returns the task's syscall counts indexed by raw syscall
// number, as reported to user space.
func (t *Task) SyscallCounts() [os4.MaxSyscallNum]uint32 {
	var counts [os4.MaxSyscallNum]uint32
	for idx, n := range t.syscallCounts {
		counts[os4.SyscallIndex(idx).Sysno()] = n
	}
	return counts
}

// ElapsedMillis returns the milliseconds since the task first ran.
func (t *Task) ElapsedMillis() uint64 {
	if !t.hasRun {
		return 0
	}
	return (t.k.clock.NowMicroseconds() - t.firstRun) / 1000
}

// run runs the task to completion. The program gets a goroutine of its own,
// which exit terminates with runtime.Goexit.
func (t *Task) run() error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-t.wake
		defer t.recoverUserPanic()
		uc := &UserContext{t: t, sp: UserStackTop}
		code := t.program(uc)
		t.exit(code, exitReasonReturned)
		panic("unreachable")
	}()
	<-done
	return nil
}

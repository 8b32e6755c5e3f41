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

	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/log"
	"os4.dev/os4/pkg/sentry/arch"
	"os4.dev/os4/pkg/sentry/mm"
)

// syscallFailure is the value of a0 after a failed syscall: -1.
const syscallFailure = ^uintptr(0)

// Syscall is the trap entry for syscall sysno with arguments args, made by
// t's program. It returns the value user space finds in a0. A syscall that
// exits the task, or faults, does not return.
//
// Preconditions: t holds the CPU and the caller is t's goroutine.
func (t *Task) Syscall(sysno uintptr, args arch.SyscallArguments) uintptr {
	t.k.mu.Lock()
	t.assertCurrentLocked()
	t.k.mu.Unlock()

	t.inKernel = true
	defer func() { t.inKernel = false }()

	rval, err := t.executeSyscall(sysno, args)
	if err != nil {
		var f *mm.Fault
		if errors.As(err, &f) {
			t.fault(f)
		}
		if log.IsLogging(log.Debug) {
			log.Debugf("[kernel] %s: %s(%v) failed: %v", t, t.k.table.LookupName(sysno), args, err)
		}
		rval = syscallFailure
	}
	t.preemptIfSliceExpired()
	return rval
}

// executeSyscall counts and runs one syscall.
func (t *Task) executeSyscall(sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	fn := t.k.table.Lookup(sysno)
	if fn == nil {
		if missing := t.k.table.Missing; missing != nil {
			return missing(t, sysno, args)
		}
		unsupportedLog.For(sysno).Warningf("[kernel] Unsupported syscall %d in task %s", sysno, t)
		return 0, oserr.ENOSYS
	}
	// Counted before the handler runs, so that a handler reporting counts
	// includes itself.
	if idx, ok := os4.IndexOf(sysno); ok {
		t.syscallCounts[idx]++
		syscallCounter.Increment(idx.String())
	}
	return fn(t, args)
}

// recoverUserPanic kills t with ExitCodeFault if its program panicked in user
// code. A panic raised while t was in the kernel is passed on.
//
// Preconditions: called deferred on t's program goroutine.
func (t *Task) recoverUserPanic() {
	r := recover()
	if r == nil {
		return
	}
	if t.inKernel {
		panic(r)
	}
	log.Warningf("[kernel] Application %s panicked: %v, kernel killed it.", t, r)
	t.exit(ExitCodeFault, exitReasonFault)
}

// fault kills t after a failed user memory access.
func (t *Task) fault(f *mm.Fault) {
	log.Warningf("[kernel] PageFault in application %s, bad addr = %v, %v access, kernel killed it.", t, f.Addr, f.Access)
	t.exit(ExitCodeFault, exitReasonFault)
}

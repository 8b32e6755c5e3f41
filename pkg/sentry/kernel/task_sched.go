// Copyright 2018 Google Inc.
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
	"runtime"

	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/log"
)

// SuspendCurrentAndRunNext marks t Ready, puts it at the back of the run
// queue and gives the CPU to the task at the front. It returns once t is
// scheduled again, which is immediately if no other task is Ready.
//
// Preconditions: t holds the CPU and the caller is t's goroutine.
func (t *Task) SuspendCurrentAndRunNext() {
	k := t.k
	k.mu.Lock()
	t.assertCurrentLocked()
	t.status = os4.Ready
	k.runQueue = append(k.runQueue, t)
	next := k.popLocked()
	if next == t {
		t.status = os4.Running
		t.sliceStart = k.clock.NowMicroseconds()
		k.mu.Unlock()
		return
	}
	k.switchToLocked(next)
	k.mu.Unlock()
	<-t.wake
}

// ExitCurrentAndRunNext marks t Exited with the given code, releases its
// address space and gives the CPU to the next Ready task. It never returns:
// the task goroutine is terminated with runtime.Goexit, so deferred calls in
// the task's program run after another task has the CPU and must not touch
// the task.
//
// Preconditions: t holds the CPU and the caller is t's goroutine.
func (t *Task) ExitCurrentAndRunNext(code int32) {
	t.exit(code, exitReasonExit)
}

func (t *Task) exit(code int32, reason string) {
	k := t.k
	k.mu.Lock()
	t.assertCurrentLocked()
	t.status = os4.Exited
	t.exitCode = code
	k.current = nil
	t.mm.Release()
	taskExitsCounter.Increment(reason)
	log.Infof("[kernel] Application %s exited with code %d", t, code)
	if next := k.popLocked(); next != nil {
		k.switchToLocked(next)
	}
	k.mu.Unlock()
	runtime.Goexit()
}

// popLocked removes and returns the task at the front of the run queue, or
// nil if the queue is empty.
//
// Preconditions: k.mu must be locked.
func (k *Kernel) popLocked() *Task {
	if len(k.runQueue) == 0 {
		return nil
	}
	t := k.runQueue[0]
	k.runQueue[0] = nil
	k.runQueue = k.runQueue[1:]
	return t
}

// switchToLocked gives the CPU to t.
//
// Preconditions:
//   - k.mu must be locked.
//   - No task holds the CPU, or the caller's task is about to block or exit.
func (k *Kernel) switchToLocked(t *Task) {
	now := k.clock.NowMicroseconds()
	if !t.hasRun {
		t.hasRun = true
		t.firstRun = now
	}
	t.sliceStart = now
	t.status = os4.Running
	k.current = t
	t.wake <- struct{}{}
}

// assertCurrentLocked panics if t does not hold the CPU.
//
// Preconditions: k.mu must be locked.
func (t *Task) assertCurrentLocked() {
	if t.k.current != t {
		panic(fmt.Sprintf("task %s acting while %v holds the CPU", t, t.k.current))
	}
}

// preemptIfSliceExpired yields the CPU if t has used up its time slice.
func (t *Task) preemptIfSliceExpired() {
	k := t.k
	if k.timeSlice == 0 || k.clock.NowMicroseconds()-t.sliceStart < k.timeSlice {
		return
	}
	log.Debugf("[kernel] Time slice of %s expired", t)
	t.SuspendCurrentAndRunNext()
}

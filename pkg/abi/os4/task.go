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
	"fmt"

	"os4.dev/os4/pkg/hostarch"
)

// TaskStatus is the scheduling state of a task. The numeric values are the
// tags written into TaskInfo.
type TaskStatus uint32

// Task states.
const (
	UnInit TaskStatus = iota
	Ready
	Running
	Exited
)

// String implements fmt.Stringer.String.
func (s TaskStatus) String() string {
	switch s {
	case UnInit:
		return "UnInit"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Exited:
		return "Exited"
	default:
		return fmt.Sprintf("TaskStatus(%d)", uint32(s))
	}
}

// TaskInfo is the record written by task_info.
//
// Layout in user memory:
//
//	0     status         u32
//	4     syscall_times  [MaxSyscallNum]u32
//	2004  (padding)      4 bytes
//	2008  time           u64, milliseconds since the task first ran
type TaskInfo struct {
	Status       TaskStatus
	SyscallTimes [MaxSyscallNum]uint32
	Time         uint64
}

// SizeOfTaskInfo is the size of a TaskInfo in user memory.
const SizeOfTaskInfo = 4 + 4*MaxSyscallNum + 4 + 8

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (ti *TaskInfo) SizeBytes() int {
	return SizeOfTaskInfo
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (ti *TaskInfo) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(ti.Status))
	dst = dst[4:]
	for i := range ti.SyscallTimes {
		hostarch.ByteOrder.PutUint32(dst[:4], ti.SyscallTimes[i])
		dst = dst[4:]
	}
	// Padding.
	hostarch.ByteOrder.PutUint32(dst[:4], 0)
	dst = dst[4:]
	hostarch.ByteOrder.PutUint64(dst[:8], ti.Time)
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (ti *TaskInfo) UnmarshalBytes(src []byte) []byte {
	ti.Status = TaskStatus(hostarch.ByteOrder.Uint32(src[:4]))
	src = src[4:]
	for i := range ti.SyscallTimes {
		ti.SyscallTimes[i] = hostarch.ByteOrder.Uint32(src[:4])
		src = src[4:]
	}
	// Padding.
	src = src[4:]
	ti.Time = hostarch.ByteOrder.Uint64(src[:8])
	return src[8:]
}

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

import "os4.dev/os4/pkg/hostarch"

// Memory protection bits accepted by mmap.
const (
	PROT_NONE  = 0
	PROT_READ  = 1 << 0
	PROT_WRITE = 1 << 1
	PROT_EXEC  = 1 << 2
)

// TimeVal is struct timeval, as written by get_time.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// SizeOfTimeVal is the size of a TimeVal in user memory.
const SizeOfTimeVal = 16

// MicrosecondsPerSecond is the number of microseconds in a second.
const MicrosecondsPerSecond = 1000000

// TimeValFromMicroseconds splits a microsecond count into a TimeVal.
func TimeValFromMicroseconds(us uint64) TimeVal {
	return TimeVal{
		Sec:  us / MicrosecondsPerSecond,
		Usec: us % MicrosecondsPerSecond,
	}
}

// Microseconds returns tv as a microsecond count.
func (tv TimeVal) Microseconds() uint64 {
	return tv.Sec*MicrosecondsPerSecond + tv.Usec
}

// Less reports whether tv is strictly earlier than other.
func (tv TimeVal) Less(other TimeVal) bool {
	return tv.Sec < other.Sec || (tv.Sec == other.Sec && tv.Usec < other.Usec)
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (tv *TimeVal) SizeBytes() int {
	return SizeOfTimeVal
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (tv *TimeVal) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], tv.Sec)
	dst = dst[8:]
	hostarch.ByteOrder.PutUint64(dst[:8], tv.Usec)
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (tv *TimeVal) UnmarshalBytes(src []byte) []byte {
	tv.Sec = hostarch.ByteOrder.Uint64(src[:8])
	src = src[8:]
	tv.Usec = hostarch.ByteOrder.Uint64(src[:8])
	return src[8:]
}

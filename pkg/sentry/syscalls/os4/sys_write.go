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
	"os4.dev/os4/pkg/errors/oserr"
	"os4.dev/os4/pkg/sentry/arch"
	"os4.dev/os4/pkg/sentry/kernel"
)

const (
	// stdoutFD is the only writable file descriptor.
	stdoutFD = 1

	// maxWriteCount is the largest single write; longer writes are short.
	maxWriteCount = 1 << 20
)

// Write implements os4 syscall write.
func Write(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	if fd != stdoutFD {
		return 0, oserr.EBADF
	}
	if size > maxWriteCount {
		size = maxWriteCount
	}
	buf := make([]byte, size)
	if _, err := t.IO().CopyInBytes(addr, buf); err != nil {
		return 0, err
	}
	n, err := t.Kernel().Console().Write(buf)
	return uintptr(n), err
}

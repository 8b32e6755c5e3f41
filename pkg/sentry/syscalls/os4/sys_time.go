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
	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/marshal"
	"os4.dev/os4/pkg/sentry/arch"
	"os4.dev/os4/pkg/sentry/kernel"
)

// GetTime implements os4 syscall get_time.
func GetTime(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	// args[1] is the timezone, which is accepted and ignored.

	tv := os4.TimeValFromMicroseconds(t.Kernel().Clock().NowMicroseconds())
	if _, err := marshal.CopyOut(t.IO(), addr, &tv); err != nil {
		return 0, err
	}
	return 0, nil
}

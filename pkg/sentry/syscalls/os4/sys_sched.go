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

// SchedYield implements os4 syscall yield.
func SchedYield(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	t.SuspendCurrentAndRunNext()
	return 0, nil
}

// SetPriority implements os4 syscall set_priority. The scheduler is plain
// round robin, so every request fails, whatever the priority.
func SetPriority(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	return 0, oserr.EPERM
}

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

package apps

import (
	"os4.dev/os4/pkg/abi/os4"
	"os4.dev/os4/pkg/hostarch"
	"os4.dev/os4/pkg/sentry/kernel"
	"os4.dev/os4/pkg/ulib"
)

// Exit codes of the programs.
const (
	exitOK     = 0
	exitFailed = 1
)

// SleepMillis is how long the sleep program sleeps.
var SleepMillis int64 = 100

// mmapBase is where the memory programs place their mappings.
const mmapBase = hostarch.Addr(0x10000000)

func init() {
	register(App{
		Name:        "hello",
		Description: "prints a greeting",
		Program:     hello,
	})
	register(App{
		Name:        "sleep",
		Description: "sleeps with get_time and yield",
		Program:     sleep,
	})
	register(App{
		Name:        "set_priority",
		Description: "checks that set_priority is refused",
		Program:     setPriority,
	})
	register(App{
		Name:        "task_info",
		Description: "checks task_info counters, status and time",
		Program:     taskInfo,
	})
	register(App{
		Name:        "mmap_basic",
		Description: "maps a page, writes and reads it back",
		Program:     mmapBasic,
	})
	register(App{
		Name:         "mmap_readonly",
		Description:  "writes to a read-only mapping and is killed",
		Program:      mmapReadOnly,
		WantExitCode: kernel.ExitCodeFault,
	})
	register(App{
		Name:        "munmap_basic",
		Description: "unmaps and remaps a range",
		Program:     munmapBasic,
	})
	register(App{
		Name:        "mmap_invalid",
		Description: "checks that malformed mmap requests fail",
		Program:     mmapInvalid,
	})
	register(App{
		Name:        "munmap_invalid",
		Description: "checks that malformed munmap requests fail",
		Program:     munmapInvalid,
	})
	register(App{
		Name:         "bad_address",
		Description:  "passes an unmapped buffer to get_time and is killed",
		Program:      badAddress,
		WantExitCode: kernel.ExitCodeFault,
	})
}

// fail reports a failed check and exits.
func fail(uc *kernel.UserContext, format string, v ...any) {
	ulib.Println(uc, "%s: FAIL: "+format, append([]any{uc.Name()}, v...)...)
	ulib.Exit(uc, exitFailed)
}

func pass(uc *kernel.UserContext) int32 {
	ulib.Println(uc, "Test %s OK!", uc.Name())
	return exitOK
}

func hello(uc *kernel.UserContext) int32 {
	ulib.Println(uc, "Hello, world!")
	return exitOK
}

func sleep(uc *kernel.UserContext) int32 {
	start := ulib.GetTimeMillis(uc)
	if start < 0 {
		fail(uc, "get_time = %d", start)
	}
	ulib.Sleep(uc, SleepMillis)
	if end := ulib.GetTimeMillis(uc); end-start < SleepMillis {
		fail(uc, "woke after %dms, want at least %dms", end-start, SleepMillis)
	}
	return pass(uc)
}

func setPriority(uc *kernel.UserContext) int32 {
	for _, prio := range []int64{-1, 0, 1, 2, 16, 1 << 40} {
		if rv := ulib.SetPriority(uc, prio); rv != -1 {
			fail(uc, "set_priority(%d) = %d, want -1", prio, rv)
		}
	}
	return pass(uc)
}

func taskInfo(uc *kernel.UserContext) int32 {
	before, rv := ulib.GetTime(uc)
	if rv != 0 {
		fail(uc, "get_time = %d", rv)
	}
	ulib.Yield(uc)
	info, rv := ulib.TaskInfo(uc)
	if rv != 0 {
		fail(uc, "task_info = %d", rv)
	}
	after, _ := ulib.GetTime(uc)

	if info.Status != os4.Running {
		fail(uc, "status = %v, want %v", info.Status, os4.Running)
	}
	checks := []struct {
		sysno int
		want  uint32
	}{
		{os4.SYS_GET_TIME, 1},
		{os4.SYS_YIELD, 1},
		{os4.SYS_TASK_INFO, 1},
		{os4.SYS_EXIT, 0},
	}
	for _, c := range checks {
		if got := info.SyscallTimes[c.sysno]; got != c.want {
			fail(uc, "syscall_times[%d] = %d, want %d", c.sysno, got, c.want)
		}
	}
	// The task cannot have run for longer than the kernel has been up.
	if uptime := after.Microseconds() / 1000; info.Time > uptime {
		fail(uc, "time = %dms, longer than the %dms uptime", info.Time, uptime)
	}
	if after.Less(before) {
		fail(uc, "get_time went backwards: %+v after %+v", after, before)
	}
	return pass(uc)
}

func mmapBasic(uc *kernel.UserContext) int32 {
	const length = 4096
	if rv := ulib.Mmap(uc, mmapBase, length, os4.PROT_READ|os4.PROT_WRITE); rv != 0 {
		fail(uc, "mmap = %d, want 0", rv)
	}
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = byte(i)
	}
	uc.Store(mmapBase, buf)
	got := make([]byte, length)
	uc.Load(mmapBase, got)
	for i := range got {
		if got[i] != byte(i) {
			fail(uc, "byte %d = %d, want %d", i, got[i], byte(i))
		}
	}
	return pass(uc)
}

func mmapReadOnly(uc *kernel.UserContext) int32 {
	if rv := ulib.Mmap(uc, mmapBase, hostarch.PageSize, os4.PROT_READ); rv != 0 {
		fail(uc, "mmap = %d, want 0", rv)
	}
	uc.Store(mmapBase, []byte{1})
	fail(uc, "write to a read-only mapping succeeded")
	return exitFailed
}

func munmapBasic(uc *kernel.UserContext) int32 {
	const rw = os4.PROT_READ | os4.PROT_WRITE
	if rv := ulib.Mmap(uc, mmapBase, hostarch.PageSize, rw); rv != 0 {
		fail(uc, "mmap = %d, want 0", rv)
	}
	if rv := ulib.Mmap(uc, mmapBase+hostarch.PageSize, hostarch.PageSize, rw); rv != 0 {
		fail(uc, "adjacent mmap = %d, want 0", rv)
	}
	uc.Store(mmapBase+hostarch.PageSize, []byte("os4"))
	// Two adjacent mappings are removed together.
	if rv := ulib.Munmap(uc, mmapBase, 2*hostarch.PageSize); rv != 0 {
		fail(uc, "munmap = %d, want 0", rv)
	}
	if rv := ulib.Mmap(uc, mmapBase, 2*hostarch.PageSize, os4.PROT_READ); rv != 0 {
		fail(uc, "remap = %d, want 0", rv)
	}
	got := make([]byte, 3)
	uc.Load(mmapBase+hostarch.PageSize, got)
	if got[0] != 0 || got[1] != 0 || got[2] != 0 {
		fail(uc, "remapped memory = %v, want zeroes", got)
	}
	if rv := ulib.Munmap(uc, mmapBase, 2*hostarch.PageSize); rv != 0 {
		fail(uc, "second munmap = %d, want 0", rv)
	}
	return pass(uc)
}

func mmapInvalid(uc *kernel.UserContext) int32 {
	const length = hostarch.PageSize
	if rv := ulib.Mmap(uc, mmapBase, length, os4.PROT_READ|os4.PROT_WRITE); rv != 0 {
		fail(uc, "mmap = %d, want 0", rv)
	}
	cases := []struct {
		what   string
		start  hostarch.Addr
		length uint64
		prot   uint64
	}{
		{"overlap", mmapBase, length, os4.PROT_READ},
		{"tail overlap", mmapBase - length, 2 * length, os4.PROT_READ},
		{"unaligned", mmapBase + 2*length + 1, length, os4.PROT_READ},
		{"no permissions", mmapBase + 2*length, length, os4.PROT_NONE},
		{"unknown bits", mmapBase + 2*length, length, 0x8 | os4.PROT_READ},
		{"zero length", mmapBase + 2*length, 0, os4.PROT_READ},
	}
	for _, c := range cases {
		if rv := ulib.Mmap(uc, c.start, c.length, c.prot); rv != -1 {
			fail(uc, "%s: mmap(%v, %#x, %#x) = %d, want -1", c.what, c.start, c.length, c.prot, rv)
		}
	}
	return pass(uc)
}

func munmapInvalid(uc *kernel.UserContext) int32 {
	const length = hostarch.PageSize
	if rv := ulib.Mmap(uc, mmapBase, 2*length, os4.PROT_READ|os4.PROT_WRITE); rv != 0 {
		fail(uc, "mmap = %d, want 0", rv)
	}
	cases := []struct {
		what   string
		start  hostarch.Addr
		length uint64
	}{
		{"unmapped", mmapBase + 4*length, length},
		{"partial", mmapBase, length},
		{"beyond end", mmapBase, 3 * length},
		{"unaligned", mmapBase + 1, 2 * length},
		{"stack", kernel.UserStackTop - length, length},
	}
	for _, c := range cases {
		if rv := ulib.Munmap(uc, c.start, c.length); rv != -1 {
			fail(uc, "%s: munmap(%v, %#x) = %d, want -1", c.what, c.start, c.length, rv)
		}
	}
	// The failed requests changed nothing.
	uc.Store(mmapBase+length, []byte{1})
	if rv := ulib.Munmap(uc, mmapBase, 2*length); rv != 0 {
		fail(uc, "munmap = %d, want 0", rv)
	}
	return pass(uc)
}

func badAddress(uc *kernel.UserContext) int32 {
	ulib.GetTimeAt(uc, 0)
	fail(uc, "get_time with a null buffer returned")
	return exitFailed
}

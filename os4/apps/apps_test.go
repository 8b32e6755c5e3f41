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
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"os4.dev/os4/pkg/sentry/kernel"
	os4syscalls "os4.dev/os4/pkg/sentry/syscalls/os4"
)

func init() {
	SleepMillis = 20
}

func newKernel(t *testing.T, console *bytes.Buffer, slice time.Duration) *kernel.Kernel {
	t.Helper()
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		MemoryFrames: 1024,
		SyscallTable: os4syscalls.Table,
		Console:      console,
		TimeSlice:    slice,
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return k
}

func TestEachApp(t *testing.T) {
	for _, app := range All() {
		t.Run(app.Name, func(t *testing.T) {
			var console bytes.Buffer
			k := newKernel(t, &console, 0)
			task, err := k.NewTask(kernel.TaskConfig{Name: app.Name, Program: app.Program})
			if err != nil {
				t.Fatalf("NewTask: %v", err)
			}
			if err := k.Run(); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := task.ExitCode(); got != app.WantExitCode {
				t.Errorf("exit code = %d, want %d; console:\n%s", got, app.WantExitCode, console.String())
			}
			if strings.Contains(console.String(), "FAIL") {
				t.Errorf("console reports a failure:\n%s", console.String())
			}
			if app.WantExitCode == exitOK && app.Name != "hello" {
				if want := "Test " + app.Name + " OK!\n"; !strings.Contains(console.String(), want) {
					t.Errorf("console = %q, want it to contain %q", console.String(), want)
				}
			}
		})
	}
}

func TestHello(t *testing.T) {
	var console bytes.Buffer
	k := newKernel(t, &console, 0)
	app, ok := Lookup("hello")
	if !ok {
		t.Fatalf("hello not registered")
	}
	if _, err := k.NewTask(kernel.TaskConfig{Name: app.Name, Program: app.Program}); err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := console.String(), "Hello, world!\n"; got != want {
		t.Errorf("console = %q, want %q", got, want)
	}
}

// TestAllAppsTogether runs every app in one kernel. The memory programs use
// the same addresses, so this also checks that address spaces are separate.
func TestAllAppsTogether(t *testing.T) {
	for _, slice := range []time.Duration{0, time.Microsecond} {
		t.Run(slice.String(), func(t *testing.T) {
			var console bytes.Buffer
			k := newKernel(t, &console, slice)
			want := map[string]int32{}
			for _, app := range All() {
				if _, err := k.NewTask(kernel.TaskConfig{Name: app.Name, Program: app.Program}); err != nil {
					t.Fatalf("NewTask(%q): %v", app.Name, err)
				}
				want[app.Name] = app.WantExitCode
			}
			if err := k.Run(); err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := map[string]int32{}
			for _, task := range k.Tasks() {
				got[task.Name()] = task.ExitCode()
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("exit codes mismatch (-want +got):\n%s\nconsole:\n%s", diff, console.String())
			}
			if free, total := k.MemoryFile().NumFree(), k.MemoryFile().NumFrames(); free != total {
				t.Errorf("%d of %d frames free after all tasks exited", free, total)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	all, err := Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve(nil): %v", err)
	}
	if len(all) != len(Names()) {
		t.Errorf("Resolve(nil) returned %d apps, want %d", len(all), len(Names()))
	}
	sel, err := Resolve([]string{"sleep", "hello"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var names []string
	for _, app := range sel {
		names = append(names, app.Name)
	}
	if diff := cmp.Diff([]string{"sleep", "hello"}, names); diff != "" {
		t.Errorf("Resolve order mismatch (-want +got):\n%s", diff)
	}
	if _, err := Resolve([]string{"nope"}); err == nil {
		t.Errorf("Resolve of an unknown app succeeded")
	}
}

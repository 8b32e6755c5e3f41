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

package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"
	"github.com/prometheus/common/expfmt"
	"os4.dev/os4/os4/config"
	"os4.dev/os4/pkg/abi/os4"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	conf, err := config.NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	return conf
}

func execute(t *testing.T, c subcommands.Command, conf *config.Config, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return c.Execute(context.Background(), fs, conf)
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	r := &Run{stdout: &out}
	if got := execute(t, r, testConfig(t), "-check", "hello", "mmap_readonly", "set_priority"); got != subcommands.ExitSuccess {
		t.Fatalf("run = %v, want success; output:\n%s", got, out.String())
	}
	for _, want := range []string{
		"Hello, world!\n",
		"Test set_priority OK!\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	var summary []string
	for _, line := range strings.Split(out.String(), "\n") {
		if f := strings.Fields(line); len(f) == 4 {
			summary = append(summary, strings.Join(f, " "))
		}
	}
	want := []string{
		"APP EXIT WANT STATUS",
		"hello 0 0 ok",
		"mmap_readonly -2 -2 ok",
		"set_priority 0 0 ok",
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAppsFromConfig(t *testing.T) {
	var out bytes.Buffer
	r := &Run{stdout: &out}
	if got := execute(t, r, testConfig(t, "--apps=hello"), "-check"); got != subcommands.ExitSuccess {
		t.Fatalf("run = %v, want success", got)
	}
	if strings.Count(out.String(), "Hello, world!") != 1 {
		t.Errorf("output = %q, want exactly one greeting", out.String())
	}
	if strings.Contains(out.String(), "munmap_basic") {
		t.Errorf("output mentions a program not in --apps:\n%s", out.String())
	}
}

func TestRunUnknownApp(t *testing.T) {
	r := &Run{stdout: &bytes.Buffer{}}
	if got := execute(t, r, testConfig(t), "no_such_app"); got != subcommands.ExitFailure {
		t.Errorf("run = %v, want failure", got)
	}
}

func TestRunOutOfMemory(t *testing.T) {
	// Each task needs its stack plus page tables.
	r := &Run{stdout: &bytes.Buffer{}}
	if got := execute(t, r, testConfig(t, "--memory-frames=4"), "hello"); got != subcommands.ExitFailure {
		t.Errorf("run = %v, want failure", got)
	}
}

func TestRunMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.txt")
	r := &Run{stdout: &bytes.Buffer{}}
	conf := testConfig(t, "--metrics-output="+path, "--metrics-prefix=test_")
	if got := execute(t, r, conf, "hello", "mmap_invalid"); got != subcommands.ExitSuccess {
		t.Fatalf("run = %v, want success", got)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		t.Fatalf("metrics do not parse: %v", err)
	}
	for _, name := range []string{
		"test_kernel_syscalls",
		"test_kernel_task_exits",
		"test_mm_mmap",
		"test_mm_munmap",
		"test_mm_frames_allocated",
	} {
		if _, ok := families[name]; !ok {
			t.Errorf("metric %q missing", name)
		}
	}
	var writes float64
	for _, m := range families["test_kernel_syscalls"].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "name" && l.GetValue() == "write" {
				writes = m.GetCounter().GetValue()
			}
		}
	}
	if writes < 2 {
		t.Errorf("write syscalls = %v, want at least 2", writes)
	}
	// Every task has exited, so no frames are left.
	if got := families["test_mm_frames_allocated"].GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("frames allocated = %v, want 0", got)
	}
}

func TestSyscalls(t *testing.T) {
	for _, tc := range []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{
			format: "table",
			check: func(t *testing.T, out string) {
				for _, want := range []string{"os4:", "NUM", "task_info", "Partial Support", "Full Support"} {
					if !strings.Contains(out, want) {
						t.Errorf("output missing %q:\n%s", want, out)
					}
				}
			},
		},
		{
			format: "json",
			check: func(t *testing.T, out string) {
				var info CompatibilityInfo
				if err := json.Unmarshal([]byte(out), &info); err != nil {
					t.Fatalf("json.Unmarshal: %v", err)
				}
				if got := info.Syscalls[os4.SYS_MMAP].Name; got != "mmap" {
					t.Errorf("syscall %d = %q, want mmap", os4.SYS_MMAP, got)
				}
				if len(info.Syscalls) != int(os4.NumSyscalls) {
					t.Errorf("%d syscalls, want %d", len(info.Syscalls), os4.NumSyscalls)
				}
			},
		},
		{
			format: "csv",
			check: func(t *testing.T, out string) {
				rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
				if err != nil {
					t.Fatalf("csv: %v", err)
				}
				if len(rows) != int(os4.NumSyscalls)+1 {
					t.Fatalf("%d rows, want %d", len(rows), os4.NumSyscalls+1)
				}
				// Rows are sorted by number; write is the lowest.
				if diff := cmp.Diff([]string{"os4", "64", "write"}, rows[1][:3]); diff != "" {
					t.Errorf("first row mismatch (-want +got):\n%s", diff)
				}
			},
		},
	} {
		t.Run(tc.format, func(t *testing.T) {
			var out bytes.Buffer
			s := &Syscalls{stdout: &out}
			if got := execute(t, s, nil, "-o", tc.format); got != subcommands.ExitSuccess {
				t.Fatalf("syscalls = %v, want success", got)
			}
			tc.check(t, out.String())
		})
	}
}

func TestSyscallsBadFormat(t *testing.T) {
	s := &Syscalls{stdout: &bytes.Buffer{}}
	if got := execute(t, s, nil, "-o", "xml"); got != subcommands.ExitFailure {
		t.Errorf("syscalls = %v, want failure", got)
	}
}

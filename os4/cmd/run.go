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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"os4.dev/os4/os4/apps"
	"os4.dev/os4/os4/cmd/util"
	"os4.dev/os4/os4/config"
	"os4.dev/os4/pkg/log"
	"os4.dev/os4/pkg/metric"
	"os4.dev/os4/pkg/sentry/kernel"
	os4syscalls "os4.dev/os4/pkg/sentry/syscalls/os4"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// check makes the command fail if any program exits with an unexpected
	// code.
	check bool

	// stdout receives the console and the summary. os.Stdout if nil.
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "boot the kernel and run built-in programs"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] [app...] - boot the kernel and run the named programs, or those in --apps, or all of them.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.check, "check", false, "fail if any program exits with a code other than the expected one.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	stdout := r.stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	names := f.Args()
	if len(names) == 0 {
		names = conf.AppNames()
	}
	sel, err := apps.Resolve(names)
	if err != nil {
		f.Usage()
		return util.Errorf("%v", err)
	}

	results, err := runApps(conf, sel, stdout)
	if err != nil {
		return util.Errorf("running programs: %v", err)
	}
	if err := writeSummary(stdout, results); err != nil {
		return util.Errorf("writing summary: %v", err)
	}
	if err := writeMetrics(conf, stdout); err != nil {
		return util.Errorf("writing metrics: %v", err)
	}

	if r.check {
		for _, res := range results {
			if !res.ok() {
				return util.Errorf("program %q exited with code %d, want %d", res.app.Name, res.code, res.app.WantExitCode)
			}
		}
	}
	return subcommands.ExitSuccess
}

// result is the outcome of one program.
type result struct {
	app  apps.App
	code int32
}

func (r result) ok() bool {
	return r.code == r.app.WantExitCode
}

// runApps boots a kernel configured by conf, runs sel to completion and
// returns their exit codes in order.
func runApps(conf *config.Config, sel []apps.App, console io.Writer) ([]result, error) {
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		MemoryFrames: conf.MemoryFrames,
		SyscallTable: os4syscalls.Table,
		Console:      console,
		TimeSlice:    conf.TimeSlice,
	}); err != nil {
		return nil, fmt.Errorf("initializing kernel: %w", err)
	}
	log.Infof("[kernel] Booted with %d frames, time slice %v, %d programs", conf.MemoryFrames, conf.TimeSlice, len(sel))

	tasks := make([]*kernel.Task, 0, len(sel))
	for _, app := range sel {
		t, err := k.NewTask(kernel.TaskConfig{Name: app.Name, Program: app.Program})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := k.Run(); err != nil {
		return nil, err
	}
	log.Infof("[kernel] All applications completed")

	results := make([]result, len(sel))
	for i, t := range tasks {
		results[i] = result{app: sel[i], code: t.ExitCode()}
	}
	return results, nil
}

func writeSummary(w io.Writer, results []result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", "APP", "EXIT", "WANT", "STATUS"); err != nil {
		return err
	}
	for _, res := range results {
		status := "ok"
		if !res.ok() {
			status = "UNEXPECTED"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", res.app.Name, res.code, res.app.WantExitCode, status); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// writeMetrics writes all metrics to conf.MetricsOutput, if set.
func writeMetrics(conf *config.Config, stdout io.Writer) error {
	switch conf.MetricsOutput {
	case "":
		return nil
	case "-":
		return metric.WritePrometheus(stdout, conf.MetricsPrefix)
	}
	f, err := os.Create(conf.MetricsOutput)
	if err != nil {
		return err
	}
	if err := metric.WritePrometheus(f, conf.MetricsPrefix); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

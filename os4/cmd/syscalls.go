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
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"os4.dev/os4/os4/cmd/util"
	"os4.dev/os4/pkg/sentry/kernel"
	os4syscalls "os4.dev/os4/pkg/sentry/syscalls/os4"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string

	// stdout is where the listing goes. os.Stdout if nil.
	stdout io.Writer
}

// CompatibilityInfo is the compatibility doc of a syscall table.
type CompatibilityInfo struct {
	// Table is the name of the syscall table.
	Table string `json:"table"`

	// Syscalls maps syscall number to the doc.
	Syscalls map[uintptr]SyscallDoc `json:"syscalls"`
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Name string `json:"name"`
	num  uintptr

	Support string `json:"support"`
	Note    string `json:"note,omitempty"`
}

type outputFunc func(io.Writer, CompatibilityInfo) error

// A map of output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  outputJSON,
	"csv":   outputCSV,
}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print compatibility information for syscalls."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] - Print compatibility information for syscalls.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, csv, json).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		return util.Errorf("Unsupported output format %q", s.output)
	}
	stdout := s.stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	if err := out(stdout, getCompatibilityInfo(os4syscalls.Table)); err != nil {
		return util.Errorf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// getCompatibilityInfo returns compatibility info for the given table.
func getCompatibilityInfo(t *kernel.SyscallTable) CompatibilityInfo {
	info := CompatibilityInfo{
		Table:    t.Name,
		Syscalls: make(map[uintptr]SyscallDoc),
	}
	for num, sc := range t.Table {
		info.Syscalls[num] = SyscallDoc{
			Name:    sc.Name,
			num:     num,
			Support: sc.SupportLevel.String(),
			Note:    sc.Note,
		}
	}
	return info
}

// sortedCalls returns the syscalls of info by number.
func sortedCalls(info CompatibilityInfo) []SyscallDoc {
	calls := make([]SyscallDoc, 0, len(info.Syscalls))
	for _, sc := range info.Syscalls {
		calls = append(calls, sc)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].num < calls[j].num
	})
	return calls
}

// outputTable outputs the syscall info in tabular format.
func outputTable(w io.Writer, info CompatibilityInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	// Print the table name.
	fmt.Fprintf(w, "%s:\n\n", info.Table)

	// Write the header
	_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
		"NUM",
		"NAME",
		"SUPPORT",
		"NOTE",
	)
	if err != nil {
		return err
	}

	// Write each syscall entry
	for _, sc := range sortedCalls(info) {
		_, err = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			strconv.FormatInt(int64(sc.num), 10),
			sc.Name,
			sc.Support,
			sc.Note,
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

// outputJSON outputs the syscall info in JSON format.
func outputJSON(w io.Writer, info CompatibilityInfo) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(info)
}

// outputCSV outputs the syscall info in tabular format.
func outputCSV(w io.Writer, info CompatibilityInfo) error {
	csvWriter := csv.NewWriter(w)

	// Write the header
	err := csvWriter.Write([]string{
		"Table",
		"Num",
		"Name",
		"Support",
		"Note",
	})
	if err != nil {
		return err
	}

	// Write each syscall entry
	for _, sc := range sortedCalls(info) {
		err = csvWriter.Write([]string{
			info.Table,
			strconv.FormatInt(int64(sc.num), 10),
			sc.Name,
			sc.Support,
			sc.Note,
		})
		if err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

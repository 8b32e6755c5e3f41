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
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"os4.dev/os4/os4/apps"
	"os4.dev/os4/os4/cmd/util"
)

// Apps implements subcommands.Command for the "apps" command.
type Apps struct{}

// Name implements subcommands.Command.Name.
func (*Apps) Name() string {
	return "apps"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Apps) Synopsis() string {
	return "list the built-in programs"
}

// Usage implements subcommands.Command.Usage.
func (*Apps) Usage() string {
	return `apps - list the built-in programs and their expected exit codes.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Apps) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Apps) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", "NAME", "EXIT", "DESCRIPTION")
	for _, app := range apps.All() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", app.Name, app.WantExitCode, app.Description)
	}
	if err := tw.Flush(); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

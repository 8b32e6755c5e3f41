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

// Package apps contains the built-in user programs. Each program checks the
// kernel's behavior from user space and reports the result on the console.
package apps

import (
	"fmt"
	"sort"

	"os4.dev/os4/pkg/sentry/kernel"
)

// App is a named user program.
type App struct {
	// Name is the task name.
	Name string

	// Description is a one-line summary shown by listings.
	Description string

	// Program is the user code.
	Program kernel.Program

	// WantExitCode is the exit code of a run where the kernel behaves
	// correctly.
	WantExitCode int32
}

var registry = map[string]App{}

func register(app App) {
	if _, ok := registry[app.Name]; ok {
		panic(fmt.Sprintf("app %q registered twice", app.Name))
	}
	registry[app.Name] = app
}

// Lookup returns the app called name.
func Lookup(name string) (App, bool) {
	app, ok := registry[name]
	return app, ok
}

// Names returns the names of all apps, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every app, sorted by name.
func All() []App {
	var all []App
	for _, name := range Names() {
		all = append(all, registry[name])
	}
	return all
}

// Resolve returns the apps called names, in order. An empty list selects all
// apps.
func Resolve(names []string) ([]App, error) {
	if len(names) == 0 {
		return All(), nil
	}
	var sel []App
	for _, name := range names {
		app, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown app %q", name)
		}
		sel = append(sel, app)
	}
	return sel, nil
}

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

// Package config provides basic infrastructure to set configuration settings
// for os4. Settings come from command line flags, optionally overlaid by a TOML
// file.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"os4.dev/os4/pkg/log"
)

// Config holds configuration that is not part of the user programs
// themselves.
//
// Fields with a "flag" tag are populated from the flag of that name.
type Config struct {
	// ConfigFile is a TOML file whose settings apply to every flag not given
	// on the command line.
	ConfigFile string `flag:"config"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// MemoryFrames is the number of physical frames of the machine.
	MemoryFrames int `flag:"memory-frames"`

	// TimeSlice is how long a task runs before it is preempted at a syscall.
	// Zero disables preemption.
	TimeSlice time.Duration `flag:"time-slice"`

	// Apps is a comma-separated list of programs run by default.
	Apps string `flag:"apps"`

	// MetricsOutput is where metrics are written in Prometheus format after a
	// run. "-" is stdout; empty disables the dump.
	MetricsOutput string `flag:"metrics-output"`

	// MetricsPrefix is prepended to every exported metric name.
	MetricsPrefix string `flag:"metrics-prefix"`
}

// AppNames returns the list in Apps.
func (c *Config) AppNames() []string {
	var names []string
	for _, name := range strings.Split(c.Apps, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (c *Config) validate() error {
	if c.MemoryFrames <= 0 {
		return fmt.Errorf("--memory-frames must be positive, got %d", c.MemoryFrames)
	}
	if c.TimeSlice < 0 {
		return fmt.Errorf("--time-slice must not be negative, got %v", c.TimeSlice)
	}
	for _, f := range []struct{ name, value string }{
		{"log-format", c.LogFormat},
		{"debug-log-format", c.DebugLogFormat},
	} {
		if f.value != "text" && f.value != "json" {
			return fmt.Errorf("invalid --%s %q, must be 'text' or 'json'", f.name, f.value)
		}
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("  --%s=%s", name, getVal(obj.Field(i)))
	}
}

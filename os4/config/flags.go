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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "TOML file with flag values; flags given on the command line take precedence.")

	// Debugging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "additional location for logs.")
	flagSet.String("debug-log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr.")

	// Flags that control the machine.
	flagSet.Int("memory-frames", 4096, "number of 4KiB physical frames.")
	flagSet.Duration("time-slice", 10*time.Millisecond, "(e.g. \"10ms\") time a task may run before it is preempted at its next syscall. Zero disables preemption.")
	flagSet.String("apps", "", "comma-separated list of built-in programs to run when none are named. Empty means all.")

	// Metrics flags.
	flagSet.String("metrics-output", "", "file path where metrics are written in Prometheus format after a run; \"-\" is stdout.")
	flagSet.String("metrics-prefix", "os4_", "prefix for all exported metric names.")
}

// fileConfig is the layout of the TOML configuration file.
type fileConfig struct {
	// Flags maps flag names to values, in command line syntax.
	Flags map[string]string `toml:"flags"`
}

// loadFile decodes the configuration file at path.
func loadFile(path string) (*fileConfig, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("decode config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}
	return &fc, nil
}

// NewFromFlags creates a new Config with values coming from command line flags
// and, if --config is set, the configuration file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	if fl := flagSet.Lookup("config"); fl != nil && fl.Value.String() != "" {
		if err := applyFile(flagSet, fl.Value.String()); err != nil {
			return nil, err
		}
	}

	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyFile sets every flag named in the file at path that was not given
// explicitly.
func applyFile(flagSet *flag.FlagSet, path string) error {
	fc, err := loadFile(path)
	if err != nil {
		return err
	}
	explicit := map[string]bool{}
	flagSet.Visit(func(fl *flag.Flag) {
		explicit[fl.Name] = true
	})
	for name, value := range fc.Flags {
		if name == "config" {
			return fmt.Errorf("config file %q: flag %q cannot be set from a file", path, name)
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			return fmt.Errorf("config file %q: flag %q not found", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := fl.Value.Set(value); err != nil {
			return fmt.Errorf("config file %q: error setting flag %s=%q: %w", path, name, value, err)
		}
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}

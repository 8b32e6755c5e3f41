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

// Package cli is the main entrypoint for os4.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"os4.dev/os4/os4/cmd"
	"os4.dev/os4/os4/cmd/util"
	"os4.dev/os4/os4/config"
	"os4.dev/os4/pkg/log"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	var errorLogger io.Writer
	if conf.LogFilename != "" {
		var err error
		errorLogger, err = os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
	}
	util.ErrorLogger = errorLogger

	// Set up logging.
	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	// Tag JSON records with the boot parameters of this instance.
	logFields := map[string]any{
		"pid":           os.Getpid(),
		"memory_frames": conf.MemoryFrames,
		"time_slice":    conf.TimeSlice.String(),
	}

	var emitters log.MultiEmitter
	if errorLogger != nil {
		emitters = append(emitters, newEmitter(conf.LogFormat, errorLogger, logFields))
	}
	if len(conf.DebugLog) > 0 {
		f, err := os.OpenFile(conf.DebugLog, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			util.Fatalf("error opening debug log file %q: %v", conf.DebugLog, err)
		}
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, f, logFields))
	}
	if conf.AlsoLogToStderr || len(emitters) == 0 {
		// Stdout belongs to the programs' console.
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, os.Stderr, logFields))
	}

	switch len(emitters) {
	case 1:
		// Use the singular emitter to avoid needless
		// `for` loop overhead when logging to a single place.
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}

	const delimString = `**************** os4 ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
		os.Exit(0)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by os4.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Run), "")

	const infoGroup = "info"
	cb(new(cmd.Apps), infoGroup)
	cb(new(cmd.Syscalls), infoGroup)
}

func newEmitter(format string, logFile io.Writer, fields map[string]any) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}, Fields: fields}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}

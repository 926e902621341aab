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

// Package cli is the main entrypoint for tkrun.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/google/subcommands"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/metric"
	"teachos.dev/teachos/tkrun/cmd"
	"teachos.dev/teachos/tkrun/config"

	// Registers the syscall table.
	_ "teachos.dev/teachos/pkg/sentry/syscalls/teachos"
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
		cmd.Fatalf("%v", err)
	}

	if conf.LogFilename != "" {
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		cmd.ErrorLogger = f
	}

	if err := metric.Initialize(); err != nil {
		cmd.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)
	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	var emitters log.MultiEmitter
	if conf.DebugLog != "" {
		f, err := log.OpenFile(conf.DebugLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.PatternOpts{
			Command: subcommand,
			Time:    time.Now(),
		})
		if err != nil {
			cmd.Fatalf("error opening debug log file in %q: %v", conf.DebugLog, err)
		}
		emitters = append(emitters, newEmitter(conf.LogFormat, f))
	}
	if cmd.ErrorLogger != nil {
		emitters = append(emitters, newEmitter(conf.LogFormat, cmd.ErrorLogger))
	}

	switch len(emitters) {
	case 0:
		// Stdout and stderr belong to the machine's console, just discard
		// the logs if no log file is specified.
		log.SetTarget(newEmitter("text", io.Discard))
	case 1:
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}

	const delimString = `**************** teachos ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Call the subcommand and pass in the configuration.
	var ws subcommands.ExitStatus
	subcmdCode := subcommands.Execute(ctx, conf, &ws)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", ws)
		os.Exit(int(ws))
	}
	// Return an error that is unlikely to be used by a program.
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(128)
}

// forEachCmd invokes the passed callback for each command supported by tkrun.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Run), "")

	const debugGroup = "debug"
	cb(new(cmd.Frames), debugGroup)
	cb(new(cmd.Syscalls), debugGroup)

	const metricGroup = "metrics"
	cb(new(cmd.Metrics), metricGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	case "logrus":
		return log.NewLogrusEmitter(&log.Writer{Next: logFile})
	}
	cmd.Fatalf("invalid log format %q, must be 'text', 'json', or 'logrus'", format)
	panic("unreachable")
}

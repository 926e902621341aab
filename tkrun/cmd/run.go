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
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/tkrun/config"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// status prints each initial process's exit status after the machine
	// stops.
	status bool
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "boot the machine and run command lines as initial processes"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <cmdline>... - boot the machine, start one process per
argument and wait until every process has exited or the machine halts.

Built-in programs: echo, cat, exit, spawn, memhog, badptr, halt, mkfile, rm.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.status, "status", false, "print the exit status of each initial process")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	waitStatus := args[1].(*subcommands.ExitStatus)

	m, err := boot(conf, os.Stdin, os.Stdout)
	if err != nil {
		Fatalf("booting machine: %v", err)
	}
	statuses, err := runAll(ctx, m.k, f.Args())
	if serr := m.shutdown(conf); serr != nil {
		Errorf("%v", serr)
	}
	if err != nil {
		if errors.Is(err, kernel.ErrKernelPanic) {
			Errorf("%v", err)
			*waitStatus = 128
			return subcommands.ExitFailure
		}
		Fatalf("%v", err)
	}

	*waitStatus = subcommands.ExitSuccess
	for i, status := range statuses {
		if r.status {
			fmt.Printf("%s: %d\n", f.Arg(i), status)
		}
		if status != 0 {
			*waitStatus = subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// runAll starts one process per cmdline and waits for the machine to go
// idle. A process that is still running when the machine halts reports
// status -1. If ctx is cancelled the machine is halted.
func runAll(ctx context.Context, k *kernel.Kernel, cmdlines []string) ([]int32, error) {
	tasks := make([]*kernel.Task, len(cmdlines))
	for i, cmdline := range cmdlines {
		t, err := k.CreateProcess(cmdline)
		if err != nil {
			k.Halt()
			return nil, fmt.Errorf("starting %q: %w", cmdline, err)
		}
		tasks[i] = t
	}

	statuses := make([]int32, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			select {
			case <-t.Exited():
				statuses[i] = t.ExitStatus()
			case <-k.Halted():
				statuses[i] = -1
				select {
				case <-t.Exited():
					statuses[i] = t.ExitStatus()
				default:
				}
			}
			return nil
		})
	}
	idle := make(chan error, 1)
	go func() {
		g.Wait()
		idle <- k.Wait()
	}()
	select {
	case err := <-idle:
		return statuses, err
	case <-ctx.Done():
		log.Infof("Interrupted, halting machine: %v", ctx.Err())
		k.Halt()
		return statuses, <-idle
	}
}

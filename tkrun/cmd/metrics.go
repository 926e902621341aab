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
	"strings"

	"github.com/google/subcommands"
	"teachos.dev/teachos/pkg/metric"
	"teachos.dev/teachos/tkrun/config"
)

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct {
	list bool
}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "print kernel metric data in Prometheus metric format"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics [-list] [<cmdline>...] - run the given command lines, if any, with their
console output discarded, then print every kernel metric.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Metrics) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.list, "list", false, "list metric names and descriptions instead of values")
}

// Execute implements subcommands.Command.Execute.
func (m *Metrics) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if m.list {
		if err := listMetrics(os.Stdout); err != nil {
			Fatalf("Error writing output: %v", err)
		}
		return subcommands.ExitSuccess
	}

	if f.NArg() > 0 {
		conf := args[0].(*config.Config)
		mach, err := boot(conf, nil, io.Discard)
		if err != nil {
			Fatalf("booting machine: %v", err)
		}
		_, err = runAll(ctx, mach.k, f.Args())
		if serr := mach.shutdown(conf); serr != nil {
			Errorf("%v", serr)
		}
		if err != nil {
			Errorf("%v", err)
		}
	}
	if err := metric.WritePrometheus(os.Stdout); err != nil {
		Fatalf("Cannot write metrics to stdout: %v", err)
	}
	return subcommands.ExitSuccess
}

func listMetrics(w io.Writer) error {
	for _, info := range metric.Registered() {
		line := fmt.Sprintf("%s\t%s", info.Name, info.Description)
		if len(info.Fields) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(info.Fields, ", "))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

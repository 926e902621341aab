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
	"teachos.dev/teachos/pkg/sentry/kernel"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
	table  string
}

// CompatibilityInfo maps a syscall table name to its documentation.
type CompatibilityInfo map[string]TableInfo

// TableInfo is compatibility doc for one syscall table.
type TableInfo struct {
	// Syscalls maps syscall number to the doc.
	Syscalls map[uintptr]SyscallDoc `json:"syscalls"`

	nums []uintptr
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Name    string `json:"name"`
	Args    int    `json:"args"`
	Support string `json:"support"`
	Note    string `json:"note,omitempty"`
}

type outputFunc func(io.Writer, CompatibilityInfo) error

// tableAll selects every registered table.
const tableAll = "all"

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
	f.StringVar(&s.table, "table", tableAll, "The syscall table (e.g. teachos).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		Fatalf("Unsupported output format %q", s.output)
	}
	info, err := getCompatibilityInfo(s.table)
	if err != nil {
		Fatalf("%v", err)
	}
	if err := out(os.Stdout, info); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// getCompatibilityInfo returns compatibility info for the named table, or
// for every table if name is "all".
func getCompatibilityInfo(name string) (CompatibilityInfo, error) {
	info := make(CompatibilityInfo)
	if name != tableAll {
		t, ok := kernel.LookupSyscallTable(name)
		if !ok {
			return nil, fmt.Errorf("syscall table %q not found", name)
		}
		info[t.Name] = getTableInfo(t)
		return info, nil
	}
	for _, t := range kernel.SyscallTables() {
		info[t.Name] = getTableInfo(t)
	}
	return info, nil
}

func getTableInfo(t *kernel.SyscallTable) TableInfo {
	info := TableInfo{
		Syscalls: make(map[uintptr]SyscallDoc),
		nums:     t.Numbers(),
	}
	for num, sc := range t.Table {
		info.Syscalls[num] = SyscallDoc{
			Name:    sc.Name,
			Args:    sc.NumArgs,
			Support: sc.SupportLevel.String(),
			Note:    sc.Note,
		}
	}
	return info
}

func sortedTables(info CompatibilityInfo) []string {
	names := make([]string, 0, len(info))
	for name := range info {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// outputTable outputs the syscall info in tabular format.
func outputTable(w io.Writer, info CompatibilityInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range sortedTables(info) {
		ti := info[name]
		fmt.Fprintf(w, "%s:\n\n", name)
		if _, err := fmt.Fprintf(tw, "NUM\tNAME\tARGS\tSUPPORT\tNOTE\n"); err != nil {
			return err
		}
		for _, num := range ti.nums {
			sc := ti.Syscalls[num]
			_, err := fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", num, sc.Name, sc.Args, sc.Support, sc.Note)
			if err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// outputJSON outputs the syscall info in JSON format.
func outputJSON(w io.Writer, info CompatibilityInfo) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(info)
}

// outputCSV outputs the syscall info in CSV format.
func outputCSV(w io.Writer, info CompatibilityInfo) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{"Table", "Num", "Name", "Args", "Support", "Note"}); err != nil {
		return err
	}
	for _, name := range sortedTables(info) {
		ti := info[name]
		for _, num := range ti.nums {
			sc := ti.Syscalls[num]
			err := csvWriter.Write([]string{
				name,
				strconv.FormatUint(uint64(num), 10),
				sc.Name,
				strconv.Itoa(sc.Args),
				sc.Support,
				sc.Note,
			})
			if err != nil {
				return err
			}
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

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
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"teachos.dev/teachos/pkg/sentry/frame"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sync"
	"teachos.dev/teachos/tkrun/config"
	"teachos.dev/teachos/tkrun/programs"
)

// Frames implements subcommands.Command for the "frames" command.
type Frames struct {
	pages  int
	output string
}

// Name implements subcommands.Command.Name.
func (*Frames) Name() string {
	return "frames"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Frames) Synopsis() string {
	return "dump the frame table while a process holds memory"
}

// Usage implements subcommands.Command.Usage.
func (*Frames) Usage() string {
	return `frames [flags] - boot the machine, run memhog until it has touched
every page, then print the frame table and eviction counters.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (fr *Frames) SetFlags(f *flag.FlagSet) {
	f.IntVar(&fr.pages, "pages", 0, "pages memhog touches; 0 means twice the user pool")
	f.StringVar(&fr.output, "o", "table", "Output format (table, json).")
}

// FrameDoc describes one frame table entry.
type FrameDoc struct {
	PhysAddr string `json:"phys"`
	VirtAddr string `json:"virt"`
	Owner    string `json:"owner"`
	Pinned   bool   `json:"pinned,omitempty"`
}

// TaskDoc describes how a task's pages are backed.
type TaskDoc struct {
	TID      int32  `json:"tid"`
	Name     string `json:"name"`
	Mapped   int    `json:"mapped"`
	Resident int    `json:"resident"`
	Swapped  int    `json:"swapped"`
}

// FrameDump is a snapshot of the frame table.
type FrameDump struct {
	Frames    []FrameDoc `json:"frames"`
	Tasks     []TaskDoc  `json:"tasks"`
	Cursor    string     `json:"cursor,omitempty"`
	Free      uint32     `json:"free"`
	Allocated uint64     `json:"allocated"`
	Evicted   uint64     `json:"evicted"`
	Freed     uint64     `json:"freed"`
}

// Execute implements subcommands.Command.Execute.
func (fr *Frames) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	pages := fr.pages
	if pages <= 0 {
		pages = 2 * int(conf.UserPages)
	}

	stdin, release := io.Pipe()
	stdout := newReadyWatcher(os.Stdout, programs.ReadyLine)
	m, err := boot(conf, stdin, stdout)
	if err != nil {
		Fatalf("booting machine: %v", err)
	}
	t, err := m.k.CreateProcess(fmt.Sprintf("memhog %d hold", pages))
	if err != nil {
		Fatalf("starting memhog: %v", err)
	}

	select {
	case <-stdout.ready:
	case <-t.Exited():
	case <-m.k.Halted():
	}
	dump := dumpFrames(m.k)
	release.Close()
	werr := m.k.Wait()
	if err := m.shutdown(conf); err != nil {
		Errorf("%v", err)
	}
	if werr != nil {
		Errorf("%v", werr)
		return subcommands.ExitFailure
	}

	switch fr.output {
	case "json":
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "  ")
		err = e.Encode(dump)
	default:
		err = writeFrameTable(os.Stdout, dump)
	}
	if err != nil {
		Fatalf("Error writing output: %v", err)
	}
	if t.ExitStatus() != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// dumpFrames snapshots the frame table of k, naming each frame's owner by
// the task whose address space it backs.
func dumpFrames(k *kernel.Kernel) FrameDump {
	var dump FrameDump
	owners := make(map[frame.Owner]string)
	for _, t := range k.Tasks() {
		owners[t.AddressSpace()] = fmt.Sprintf("%d (%s)", t.ThreadID(), t.Name())
		u := t.AddressSpace().Usage()
		dump.Tasks = append(dump.Tasks, TaskDoc{
			TID:      int32(t.ThreadID()),
			Name:     t.Name(),
			Mapped:   u.Mapped,
			Resident: u.Resident,
			Swapped:  u.Swapped,
		})
	}
	k.Frames().ForEach(func(e frame.Entry) {
		owner, ok := owners[e.Owner]
		if !ok {
			owner = "?"
		}
		dump.Frames = append(dump.Frames, FrameDoc{
			PhysAddr: e.PhysAddr.String(),
			VirtAddr: e.VirtAddr.String(),
			Owner:    owner,
			Pinned:   e.Pinned,
		})
	})
	if pa, ok := k.Frames().Cursor(); ok {
		dump.Cursor = pa.String()
	}
	dump.Free = k.Memory().Available(pgalloc.UserPool)
	stats := k.Frames().Stats()
	dump.Allocated = stats.Allocated
	dump.Evicted = stats.Evicted
	dump.Freed = stats.Freed
	return dump
}

func writeFrameTable(w io.Writer, dump FrameDump) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "PHYS\tVIRT\tOWNER\tPINNED\n")
	for _, fd := range dump.Frames {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", fd.PhysAddr, fd.VirtAddr, fd.Owner, fd.Pinned)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(tw, "TID\tNAME\tMAPPED\tRESIDENT\tSWAPPED\n")
	for _, td := range dump.Tasks {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", td.TID, td.Name, td.Mapped, td.Resident, td.Swapped)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	cursor := dump.Cursor
	if cursor == "" {
		cursor = "start"
	}
	_, err := fmt.Fprintf(w, "\n%d frames in use, %d free, cursor %s, allocated %d, evicted %d, freed %d\n",
		len(dump.Frames), dump.Free, cursor, dump.Allocated, dump.Evicted, dump.Freed)
	return err
}

// readyWatcher passes writes through to an underlying writer and closes
// ready once line has been written.
type readyWatcher struct {
	next  io.Writer
	line  []byte
	ready chan struct{}

	mu   sync.Mutex
	seen bytes.Buffer
	done bool
}

func newReadyWatcher(next io.Writer, line string) *readyWatcher {
	return &readyWatcher{
		next:  next,
		line:  []byte(line),
		ready: make(chan struct{}),
	}
}

// Write implements io.Writer.Write.
func (w *readyWatcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	if !w.done {
		w.seen.Write(p)
		if bytes.Contains(w.seen.Bytes(), w.line) {
			w.done = true
			w.seen.Reset()
			close(w.ready)
		}
	}
	w.mu.Unlock()
	return w.next.Write(p)
}

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
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/tkrun/config"
	"teachos.dev/teachos/tkrun/programs"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Parse(%v): got %v, wanted nil", args, err)
	}
	conf, err := config.NewFromFlags(f)
	if err != nil {
		t.Fatalf("NewFromFlags: got %v, wanted nil", err)
	}
	return conf
}

func TestRunAll(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "metrics.txt")
	conf := testConfig(t, "--user-pages=16", "--metrics-file="+metrics)
	var out bytes.Buffer
	m, err := boot(conf, nil, &out)
	if err != nil {
		t.Fatalf("boot: got %v, wanted nil", err)
	}
	statuses, err := runAll(context.Background(), m.k, []string{"exit 3", "spawn 2 exit 0"})
	if err != nil {
		t.Fatalf("runAll: got %v, wanted nil", err)
	}
	if diff := cmp.Diff([]int32{3, 0}, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if err := m.shutdown(conf); err != nil {
		t.Fatalf("shutdown: got %v, wanted nil", err)
	}
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("ReadFile: got %v, wanted nil", err)
	}
	if !strings.Contains(string(data), "teachos_kernel_processes_started") {
		t.Errorf("metrics file lacks processes_started:\n%s", data)
	}
}

func TestRunAllBadCommand(t *testing.T) {
	conf := testConfig(t)
	m, err := boot(conf, nil, io.Discard)
	if err != nil {
		t.Fatalf("boot: got %v, wanted nil", err)
	}
	if _, err := runAll(context.Background(), m.k, []string{"nosuchprogram"}); err == nil {
		t.Errorf("runAll(nosuchprogram): got nil, wanted error")
	}
	if !m.k.IsHalted() {
		t.Errorf("machine still running after a failed start")
	}
}

func TestRunAllCancelled(t *testing.T) {
	conf := testConfig(t)
	stdin, _ := io.Pipe()
	m, err := boot(conf, stdin, io.Discard)
	if err != nil {
		t.Fatalf("boot: got %v, wanted nil", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	statuses, err := runAll(ctx, m.k, []string{"memhog 2 hold"})
	if err != nil {
		t.Fatalf("runAll: got %v, wanted nil", err)
	}
	if diff := cmp.Diff([]int32{-1}, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestBootSwapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swap")
	conf := testConfig(t, "--user-pages=6", "--swap=file", "--swap-file="+path, "--swap-slots=64")
	m, err := boot(conf, nil, io.Discard)
	if err != nil {
		t.Fatalf("boot: got %v, wanted nil", err)
	}
	statuses, err := runAll(context.Background(), m.k, []string{"memhog 16"})
	if err != nil {
		t.Fatalf("runAll: got %v, wanted nil", err)
	}
	if statuses[0] != 0 {
		t.Errorf("memhog 16: got status %d, wanted 0", statuses[0])
	}
	if err := m.shutdown(conf); err != nil {
		t.Fatalf("shutdown: got %v, wanted nil", err)
	}
}

func TestBootFSBytes(t *testing.T) {
	conf := testConfig(t, "--swap=none", "--fs-bytes=1")
	if _, err := boot(conf, nil, io.Discard); !errors.Is(err, linuxerr.ENOSPC) {
		t.Errorf("boot with a 1 byte filesystem: got %v, wanted ENOSPC", err)
	}
}

func TestDumpFrames(t *testing.T) {
	conf := testConfig(t, "--user-pages=8")
	stdin, release := io.Pipe()
	stdout := newReadyWatcher(io.Discard, programs.ReadyLine)
	m, err := boot(conf, stdin, stdout)
	if err != nil {
		t.Fatalf("boot: got %v, wanted nil", err)
	}
	task, err := m.k.CreateProcess("memhog 12 hold")
	if err != nil {
		t.Fatalf("k.CreateProcess: got %v, wanted nil", err)
	}
	<-stdout.ready
	dump := dumpFrames(m.k)
	release.Close()
	if err := m.k.Wait(); err != nil {
		t.Fatalf("k.Wait: got %v, wanted nil", err)
	}

	if len(dump.Frames) == 0 || len(dump.Frames) > 8 {
		t.Errorf("dump has %d frames, wanted 1 to 8", len(dump.Frames))
	}
	for _, fd := range dump.Frames {
		if !strings.HasSuffix(fd.Owner, "(memhog)") {
			t.Errorf("frame %s owned by %q, wanted memhog", fd.PhysAddr, fd.Owner)
		}
	}
	if len(dump.Tasks) != 1 {
		t.Fatalf("dump has %d tasks, wanted 1", len(dump.Tasks))
	}
	// Image, stack and 12 heap pages.
	if td := dump.Tasks[0]; td.Name != "memhog" || td.Mapped != 14 || td.Resident > 8 {
		t.Errorf("memhog usage: got %+v, wanted 14 pages mapped and at most 8 resident", td)
	}
	if dump.Evicted == 0 {
		t.Errorf("dump.Evicted: got 0, wanted evictions")
	}
	var buf bytes.Buffer
	if err := writeFrameTable(&buf, dump); err != nil {
		t.Fatalf("writeFrameTable: got %v, wanted nil", err)
	}
	if !strings.HasPrefix(buf.String(), "PHYS") {
		t.Errorf("frame table has no header:\n%s", buf.String())
	}
	if task.ExitStatus() != 0 {
		t.Errorf("memhog: got status %d, wanted 0", task.ExitStatus())
	}
}

func TestReadyWatcher(t *testing.T) {
	var out bytes.Buffer
	w := newReadyWatcher(&out, "ready\n")
	w.Write([]byte("not yet\nrea"))
	select {
	case <-w.ready:
		t.Fatalf("ready closed before the line was written")
	default:
	}
	w.Write([]byte("dy\nmore"))
	select {
	case <-w.ready:
	default:
		t.Fatalf("ready not closed after the line was written")
	}
	w.Write([]byte("ready\n"))
	if got, want := out.String(), "not yet\nready\nmoreready\n"; got != want {
		t.Errorf("passed through %q, wanted %q", got, want)
	}
}

func TestSyscallsOutput(t *testing.T) {
	info, err := getCompatibilityInfo("teachos")
	if err != nil {
		t.Fatalf("getCompatibilityInfo: got %v, wanted nil", err)
	}
	var buf bytes.Buffer
	if err := outputCSV(&buf, info); err != nil {
		t.Fatalf("outputCSV: got %v, wanted nil", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 14 {
		t.Fatalf("CSV has %d lines, wanted 14:\n%s", len(lines), buf.String())
	}
	if got, want := lines[1], "teachos,0,halt,0,Full Support,"; got != want {
		t.Errorf("first row: got %q, wanted %q", got, want)
	}
	if _, err := getCompatibilityInfo("nosuchtable"); err == nil {
		t.Errorf("getCompatibilityInfo(nosuchtable): got nil, wanted error")
	}
}

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

package teachos

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sentry/fs/memfs"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sentry/swap"
	"teachos.dev/teachos/pkg/sync"
	"teachos.dev/teachos/pkg/userlib"
)

// dataPage is the first page above the image, mapped by programs that need
// a buffer.
const dataPage = hostarch.Addr(teachos.ImageBase + hostarch.PageSize)

// testFSBytes is the capacity of the test filesystem.
const testFSBytes = 1 << 20

type testOpts struct {
	userPages uint32
	noSwap    bool
	stdin     io.Reader
	strace    bool
}

func newKernel(t *testing.T, opts testOpts) (*kernel.Kernel, *bytes.Buffer) {
	t.Helper()
	if opts.userPages == 0 {
		opts.userPages = 32
	}
	var store swap.Store
	if !opts.noSwap {
		store = swap.NewMemoryStore(256)
	}
	var out bytes.Buffer
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Filesystem:   memfs.New(testFSBytes),
		Memory:       pgalloc.New(4, opts.userPages),
		Swap:         store,
		SyscallTable: Table,
		Stdin:        opts.stdin,
		Stdout:       &out,
		Strace:       opts.strace,
	}); err != nil {
		t.Fatalf("k.Init: got %v, wanted nil", err)
	}
	return k, &out
}

func install(t *testing.T, k *kernel.Kernel, name string, fn kernel.ProgramFunc) {
	t.Helper()
	if err := k.InstallProgram(name, fn); err != nil {
		t.Fatalf("k.InstallProgram(%q): got %v, wanted nil", name, err)
	}
}

func run(t *testing.T, k *kernel.Kernel, cmdline string) *kernel.Task {
	t.Helper()
	task, err := k.CreateProcess(cmdline)
	if err != nil {
		t.Fatalf("k.CreateProcess(%q): got %v, wanted nil", cmdline, err)
	}
	if err := k.Wait(); err != nil {
		t.Fatalf("k.Wait: got %v, wanted nil", err)
	}
	return task
}

func mapData(t *testing.T, u *kernel.UserContext, pages int) {
	for i := 0; i < pages; i++ {
		va := dataPage + hostarch.Addr(i*hostarch.PageSize)
		if err := u.MapPage(va); err != nil {
			t.Errorf("MapPage(%v): got %v, wanted nil", va, err)
		}
	}
}

func TestTableRegistered(t *testing.T) {
	got, ok := kernel.LookupSyscallTable(Name)
	if !ok || got != Table {
		t.Fatalf("LookupSyscallTable(%q): got %p, %t, wanted %p, true", Name, got, ok, Table)
	}
	want := map[uintptr]int{
		teachos.SYS_HALT: 0, teachos.SYS_EXIT: 1, teachos.SYS_EXEC: 1, teachos.SYS_WAIT: 1,
		teachos.SYS_CREATE: 2, teachos.SYS_REMOVE: 1, teachos.SYS_OPEN: 1, teachos.SYS_FILESIZE: 1,
		teachos.SYS_READ: 3, teachos.SYS_WRITE: 3, teachos.SYS_SEEK: 2, teachos.SYS_TELL: 1,
		teachos.SYS_CLOSE: 1,
	}
	gotArgs := make(map[uintptr]int)
	for sysno, sc := range Table.Table {
		gotArgs[sysno] = sc.NumArgs
	}
	if diff := cmp.Diff(want, gotArgs); diff != "" {
		t.Errorf("argument counts mismatch (-want +got):\n%s", diff)
	}
}

func TestExitThroughWait(t *testing.T) {
	k, out := newKernel(t, testOpts{})
	install(t, k, "child", func(u *kernel.UserContext) int32 {
		userlib.Exit(u, 42)
		return 0
	})
	var status, missing int32
	install(t, k, "parent", func(u *kernel.UserContext) int32 {
		pid := userlib.Exec(u, "child arg")
		if pid < 0 {
			t.Errorf("Exec(child): got %d, wanted a pid", pid)
			return 1
		}
		status = userlib.Wait(u, pid)
		missing = userlib.Exec(u, "nope")
		return 0
	})
	run(t, k, "parent")
	if status != 42 {
		t.Errorf("Wait(child): got %d, wanted 42", status)
	}
	if missing != -1 {
		t.Errorf("Exec(nope): got %d, wanted -1", missing)
	}
	if got, want := out.String(), "child: exit(42)\nparent: exit(0)\n"; got != want {
		t.Errorf("console output: got %q, wanted %q", got, want)
	}
}

func TestWaitTwice(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	install(t, k, "child", func(u *kernel.UserContext) int32 {
		return 5
	})
	var first, second, notChild int32
	install(t, k, "parent", func(u *kernel.UserContext) int32 {
		pid := userlib.Exec(u, "child")
		first = userlib.Wait(u, pid)
		second = userlib.Wait(u, pid)
		notChild = userlib.Wait(u, int32(u.ThreadID()))
		return 0
	})
	run(t, k, "parent")
	if first != 5 || second != -1 || notChild != -1 {
		t.Errorf("Wait results: got %d, %d, %d, wanted 5, -1, -1", first, second, notChild)
	}
}

func TestWriteStdout(t *testing.T) {
	k, out := newKernel(t, testOpts{})
	var n, bad int32
	install(t, k, "hello", func(u *kernel.UserContext) int32 {
		n = userlib.WriteString(u, teachos.STDOUT_FILENO, "hi")
		bad = userlib.WriteString(u, teachos.STDIN_FILENO, "no")
		return 0
	})
	run(t, k, "hello")
	if n != 2 {
		t.Errorf("Write(1, hi, 2): got %d, wanted 2", n)
	}
	if bad != -1 {
		t.Errorf("Write(0, ...): got %d, wanted -1", bad)
	}
	if got, want := out.String(), "hihello: exit(0)\n"; got != want {
		t.Errorf("console output: got %q, wanted %q", got, want)
	}
}

func TestReadStdin(t *testing.T) {
	k, _ := newKernel(t, testOpts{stdin: strings.NewReader("hello")})
	var n, eof, bad int32
	var got []byte
	install(t, k, "reader", func(u *kernel.UserContext) int32 {
		mapData(t, u, 1)
		n = userlib.Read(u, teachos.STDIN_FILENO, dataPage, 5)
		got = make([]byte, n)
		u.Load(dataPage, got)
		eof = userlib.Read(u, teachos.STDIN_FILENO, dataPage, 5)
		bad = userlib.Read(u, teachos.STDOUT_FILENO, dataPage, 5)
		return 0
	})
	run(t, k, "reader")
	if n != 5 || string(got) != "hello" {
		t.Errorf("Read(0, buf, 5): got %d %q, wanted 5 %q", n, got, "hello")
	}
	if eof != 0 {
		t.Errorf("Read(0) at end of input: got %d, wanted 0", eof)
	}
	if bad != -1 {
		t.Errorf("Read(1, ...): got %d, wanted -1", bad)
	}
}

func TestOpenMissing(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	var missing, long, first int32
	install(t, k, "prog", func(u *kernel.UserContext) int32 {
		missing = userlib.Open(u, "missing")
		long = userlib.Open(u, strings.Repeat("x", teachos.MaxPathLen+10))
		userlib.Create(u, "f", 1)
		first = userlib.Open(u, "f")
		return 0
	})
	run(t, k, "prog")
	if missing != -1 || long != -1 {
		t.Errorf("Open of bad names: got %d, %d, wanted -1, -1", missing, long)
	}
	// Failed opens allocate no descriptor.
	if first != teachos.FirstUserFD {
		t.Errorf("first successful Open: got %d, wanted %d", first, teachos.FirstUserFD)
	}
}

func TestFileOps(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	type result struct {
		Created, CreatedAgain    bool
		Wrote, Size              int32
		TellAfterWrite           uint32
		ReadBack                 string
		ShortWrite, ReadAtEnd    int32
		SizeAfterClose, BadWrite int32
		Removed, RemovedAgain    bool
	}
	var got result
	install(t, k, "files", func(u *kernel.UserContext) int32 {
		mapData(t, u, 1)
		got.Created = userlib.Create(u, "f", 10)
		got.CreatedAgain = userlib.Create(u, "f", 10)
		fd := userlib.Open(u, "f")
		u.Store(dataPage, []byte("abcd"))
		got.Wrote = userlib.Write(u, fd, dataPage, 4)
		got.TellAfterWrite = userlib.Tell(u, fd)
		got.Size = userlib.Filesize(u, fd)
		userlib.Seek(u, fd, 0)
		n := userlib.Read(u, fd, dataPage+100, 4)
		buf := make([]byte, n)
		u.Load(dataPage+100, buf)
		got.ReadBack = string(buf)
		userlib.Seek(u, fd, 8)
		got.ShortWrite = userlib.Write(u, fd, dataPage, 20)
		got.ReadAtEnd = userlib.Read(u, fd, dataPage, 4)
		userlib.Close(u, fd)
		got.SizeAfterClose = userlib.Filesize(u, fd)
		got.BadWrite = userlib.Write(u, fd, dataPage, 1)
		got.Removed = userlib.Remove(u, "f")
		got.RemovedAgain = userlib.Remove(u, "f")
		return 0
	})
	run(t, k, "files")
	want := result{
		Created:        true,
		Wrote:          4,
		TellAfterWrite: 4,
		Size:           10,
		ReadBack:       "abcd",
		ShortWrite:     2,
		ReadAtEnd:      0,
		SizeAfterClose: -1,
		BadWrite:       -1,
		Removed:        true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file operations mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossPageIO(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	const size = 2*hostarch.PageSize + 100
	var wrote, read int32
	var same bool
	install(t, k, "big", func(u *kernel.UserContext) int32 {
		mapData(t, u, 6)
		src := make([]byte, size)
		for i := range src {
			src[i] = byte(i % 251)
		}
		// Start mid-page so every page of the buffer is a partial chunk.
		buf := dataPage + 50
		u.Store(buf, src)
		if !userlib.Create(u, "data", size) {
			t.Errorf("create(data, %d) failed", size)
			return 1
		}
		fd := userlib.Open(u, "data")
		wrote = userlib.Write(u, fd, buf, size)
		userlib.Seek(u, fd, 0)
		dst := buf + 3*hostarch.PageSize
		read = userlib.Read(u, fd, dst, size)
		back := make([]byte, size)
		u.Load(dst, back)
		same = bytes.Equal(src, back)
		return 0
	})
	run(t, k, "big")
	if wrote != size || read != size || !same {
		t.Errorf("cross-page I/O: wrote %d read %d equal %t, wanted %d %d true", wrote, read, same, size, size)
	}
}

func TestCreateBeyondCapacity(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	type result struct {
		Huge, OverCapacity, Fits, NoRoomLeft, AfterRemove bool
	}
	var got result
	install(t, k, "creator", func(u *kernel.UserContext) int32 {
		// Sizes with the top bit set are large, not negative.
		got.Huge = userlib.Create(u, "huge", 0x80000000)
		got.OverCapacity = userlib.Create(u, "over", testFSBytes+1)
		got.Fits = userlib.Create(u, "half", testFSBytes/2)
		got.NoRoomLeft = userlib.Create(u, "other", testFSBytes/2)
		userlib.Remove(u, "half")
		got.AfterRemove = userlib.Create(u, "other", testFSBytes/2)
		return 0
	})
	run(t, k, "creator")
	want := result{Fits: true, AfterRemove: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("create results mismatch (-want +got):\n%s", diff)
	}
}

func TestBadPointersKill(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func(u *kernel.UserContext)
	}{
		{"open null", func(u *kernel.UserContext) {
			userlib.Syscall(u, teachos.SYS_OPEN, 0)
		}},
		{"create kernel address", func(u *kernel.UserContext) {
			userlib.Syscall(u, teachos.SYS_CREATE, teachos.PhysBase, 1)
		}},
		{"exec unmapped", func(u *kernel.UserContext) {
			userlib.Syscall(u, teachos.SYS_EXEC, uint32(dataPage))
		}},
		{"write straddling PhysBase", func(u *kernel.UserContext) {
			userlib.Write(u, teachos.STDOUT_FILENO, teachos.PhysBase-2, 10)
		}},
		{"read into unmapped page", func(u *kernel.UserContext) {
			userlib.Read(u, teachos.STDIN_FILENO, dataPage, 1)
		}},
		{"write buffer with hole", func(u *kernel.UserContext) {
			u.MapPage(dataPage)
			userlib.Write(u, teachos.STDOUT_FILENO, dataPage, 2*hostarch.PageSize)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k, out := newKernel(t, testOpts{})
			install(t, k, "bad", func(u *kernel.UserContext) int32 {
				tc.fn(u)
				t.Errorf("bad pointer did not kill the process")
				return 0
			})
			task := run(t, k, "bad")
			if got := task.ExitStatus(); got != teachos.ExitFailure {
				t.Errorf("ExitStatus(): got %d, wanted %d", got, teachos.ExitFailure)
			}
			if got, want := out.String(), "bad: exit(-1)\n"; got != want {
				t.Errorf("console output: got %q, wanted %q", got, want)
			}
		})
	}
}

func TestBadDescriptors(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	var got []int32
	install(t, k, "prog", func(u *kernel.UserContext) int32 {
		mapData(t, u, 1)
		got = append(got,
			userlib.Filesize(u, 99),
			userlib.Read(u, 99, dataPage, 1),
			userlib.Write(u, 99, dataPage, 1),
			int32(userlib.Tell(u, 99)),
			int32(userlib.Syscall(u, teachos.SYS_SEEK, 99, 0)),
			int32(userlib.Syscall(u, teachos.SYS_CLOSE, teachos.STDOUT_FILENO)),
		)
		return 0
	})
	run(t, k, "prog")
	want := []int32{-1, -1, -1, -1, -1, -1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bad descriptor results mismatch (-want +got):\n%s", diff)
	}
}

func TestDescriptorsIncreaseAcrossProcesses(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	const procs, opens = 4, 10
	var mu sync.Mutex
	fds := make(map[kernel.ThreadID][]int32)
	install(t, k, "opener", func(u *kernel.UserContext) int32 {
		var mine []int32
		for i := 0; i < opens; i++ {
			mine = append(mine, userlib.Open(u, "opener"))
		}
		mu.Lock()
		fds[u.ThreadID()] = mine
		mu.Unlock()
		return 0
	})

	var g errgroup.Group
	for i := 0; i < procs; i++ {
		g.Go(func() error {
			task, err := k.CreateProcess("opener")
			if err != nil {
				return err
			}
			<-task.Exited()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("starting openers: got %v, wanted nil", err)
	}
	if err := k.Wait(); err != nil {
		t.Fatalf("k.Wait: got %v, wanted nil", err)
	}

	seen := make(map[int32]bool)
	for tid, list := range fds {
		for i, fd := range list {
			if fd < teachos.FirstUserFD {
				t.Errorf("process %d: open #%d returned %d", tid, i, fd)
			}
			if i > 0 && fd <= list[i-1] {
				t.Errorf("process %d: descriptors not increasing: %v", tid, list)
			}
			if seen[fd] {
				t.Errorf("descriptor %d issued twice", fd)
			}
			seen[fd] = true
		}
	}
	if len(seen) != procs*opens {
		t.Errorf("got %d distinct descriptors, wanted %d", len(seen), procs*opens)
	}
}

func TestExitClosesFiles(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	install(t, k, "leaker", func(u *kernel.UserContext) int32 {
		userlib.Create(u, "f", 4)
		userlib.Open(u, "f")
		userlib.Open(u, "f")
		userlib.Remove(u, "f")
		return 0
	})
	run(t, k, "leaker")
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	mfs := k.Filesystem().(*memfs.Filesystem)
	// Only the executable is left once the removed file's handles close.
	if got := mfs.Live(); got != 1 {
		t.Errorf("live files after exit: got %d, wanted 1", got)
	}
}

func TestHalt(t *testing.T) {
	k, out := newKernel(t, testOpts{})
	install(t, k, "off", func(u *kernel.UserContext) int32 {
		userlib.Halt(u)
		return 0
	})
	run(t, k, "off")
	if !k.IsHalted() {
		t.Errorf("k.IsHalted(): got false, wanted true")
	}
	if out.Len() != 0 {
		t.Errorf("halt printed %q, wanted nothing", out.String())
	}
}

func TestWaitInterruptedByHalt(t *testing.T) {
	k, _ := newKernel(t, testOpts{})
	install(t, k, "sleeper", func(u *kernel.UserContext) int32 {
		<-k.Halted()
		return 0
	})
	install(t, k, "off", func(u *kernel.UserContext) int32 {
		userlib.Halt(u)
		return 0
	})
	install(t, k, "parent", func(u *kernel.UserContext) int32 {
		pid := userlib.Exec(u, "sleeper")
		userlib.Exec(u, "off")
		userlib.Wait(u, pid)
		t.Errorf("wait returned after halt")
		return 0
	})
	run(t, k, "parent")
}

func TestMemoryExhaustionPanics(t *testing.T) {
	// Without swap, dirty pages cannot be evicted.
	k, _ := newKernel(t, testOpts{userPages: 4, noSwap: true})
	install(t, k, "hog", func(u *kernel.UserContext) int32 {
		for i := 0; ; i++ {
			va := dataPage + hostarch.Addr(i*hostarch.PageSize)
			u.MapPage(va)
			u.StoreWord(va, 1)
		}
	})
	if _, err := k.CreateProcess("hog"); err != nil {
		t.Fatalf("k.CreateProcess: got %v, wanted nil", err)
	}
	if err := k.Wait(); !errors.Is(err, kernel.ErrKernelPanic) {
		t.Fatalf("k.Wait: got %v, wanted %v", err, kernel.ErrKernelPanic)
	}
}

func TestMemoryPressureWithSwap(t *testing.T) {
	k, _ := newKernel(t, testOpts{userPages: 4})
	const pages = 12
	var sum uint32
	install(t, k, "hog", func(u *kernel.UserContext) int32 {
		mapData(t, u, pages)
		for i := 0; i < pages; i++ {
			u.StoreWord(dataPage+hostarch.Addr(i*hostarch.PageSize), uint32(i))
		}
		for i := 0; i < pages; i++ {
			sum += u.LoadWord(dataPage + hostarch.Addr(i*hostarch.PageSize))
		}
		return 0
	})
	if got := run(t, k, "hog").ExitStatus(); got != 0 {
		t.Fatalf("ExitStatus(): got %d, wanted 0", got)
	}
	if want := uint32(pages * (pages - 1) / 2); sum != want {
		t.Errorf("sum of pages: got %d, wanted %d", sum, want)
	}
	if k.Frames().Len() != 0 {
		t.Errorf("frames left after exit: %d", k.Frames().Len())
	}
}

type recordingEmitter struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingEmitter) Emit(_ int, _ log.Level, _ time.Time, format string, v ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

func TestStrace(t *testing.T) {
	old := log.Log().Emitter
	rec := &recordingEmitter{}
	log.SetTarget(rec)
	defer log.SetTarget(old)

	k, _ := newKernel(t, testOpts{strace: true})
	install(t, k, "traced", func(u *kernel.UserContext) int32 {
		userlib.Filesize(u, 99)
		return 0
	})
	run(t, k, "traced")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var entry, exit bool
	for _, l := range rec.lines {
		entry = entry || strings.Contains(l, "traced E filesize(0x63)")
		exit = exit || strings.Contains(l, "traced X filesize(0x63) = -1")
	}
	if !entry || !exit {
		t.Errorf("strace lines missing from %q", rec.lines)
	}
}

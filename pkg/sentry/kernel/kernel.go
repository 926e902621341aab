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

// Package kernel provides an emulation of the teaching kernel: processes,
// their descriptor tables, program loading and the syscall trap path.
//
// Lock order:
//
//	Kernel.FSLock
//	  Task.mu
//	    Kernel.mu
//
// Kernel.FSLock is never held while touching user memory, since a copy may
// fault a page in and take the frame lock.
package kernel

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/metric"
	"teachos.dev/teachos/pkg/sentry/frame"
	"teachos.dev/teachos/pkg/sentry/fs"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sentry/swap"
	"teachos.dev/teachos/pkg/sync"
)

var (
	syscallCounter        = metric.MustCreateNewUint64Metric("/kernel/syscalls", "Number of syscalls dispatched.")
	unknownSyscallCounter = metric.MustCreateNewUint64Metric("/kernel/unknown_syscalls", "Number of processes killed for an unknown syscall number.")
	killedCounter         = metric.MustCreateNewUint64Metric("/kernel/killed_processes", "Number of processes terminated by the kernel.")
	startedCounter        = metric.MustCreateNewUint64Metric("/kernel/processes_started", "Number of processes started.")
)

// ErrKernelPanic is wrapped by the error Wait returns after Panicf.
var ErrKernelPanic = errors.New("kernel panic")

// ThreadID is a process id. Each process has a single thread, so the two
// are the same.
type ThreadID int32

// Kernel holds the machine state shared by all processes.
type Kernel struct {
	// FSLock serializes every filesystem operation, including the load
	// phase of exec.
	FSLock sync.Mutex

	// fs is protected by FSLock.
	fs fs.Filesystem

	mem     *pgalloc.PhysicalMemory
	frames  *frame.Table
	swap    swap.Store
	console *Console

	syscalls *SyscallTable
	programs Registry
	strace   bool

	// nextFD is the last descriptor id issued.
	nextFD atomic.Int32

	mu      sync.Mutex
	nextTID ThreadID
	tasks   map[ThreadID]*Task

	// running counts task goroutines. idle is closed whenever running is
	// zero. Both are protected by mu.
	running int
	idle    chan struct{}

	haltOnce sync.Once
	halted   chan struct{}

	// panicErr is the fatal error that halted the machine, if any. It is
	// protected by mu.
	panicErr error
}

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Filesystem is the root filesystem.
	Filesystem fs.Filesystem

	// Memory is the machine's physical memory.
	Memory *pgalloc.PhysicalMemory

	// Swap receives evicted dirty pages. It may be nil.
	Swap swap.Store

	// SyscallTable is the table used to dispatch traps.
	SyscallTable *SyscallTable

	// Stdin and Stdout back the console. Stdin may be nil.
	Stdin  io.Reader
	Stdout io.Writer

	// Strace logs every syscall.
	Strace bool
}

// Init initializes the Kernel with no tasks.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.Filesystem == nil {
		return fmt.Errorf("filesystem is nil")
	}
	if args.Memory == nil {
		return fmt.Errorf("physical memory is nil")
	}
	if args.SyscallTable == nil {
		return fmt.Errorf("syscall table is nil")
	}
	k.fs = args.Filesystem
	k.mem = args.Memory
	k.frames = frame.NewTable(args.Memory)
	k.swap = args.Swap
	k.console = NewConsole(args.Stdout, args.Stdin)
	k.syscalls = args.SyscallTable
	k.strace = args.Strace
	k.nextFD.Store(teachos.FirstUserFD - 1)
	k.tasks = make(map[ThreadID]*Task)
	k.halted = make(chan struct{})
	k.idle = make(chan struct{})
	close(k.idle)
	return nil
}

// Frames returns the frame table.
func (k *Kernel) Frames() *frame.Table {
	return k.frames
}

// Memory returns the physical memory.
func (k *Kernel) Memory() *pgalloc.PhysicalMemory {
	return k.mem
}

// Filesystem returns the root filesystem.
//
// Preconditions: k.FSLock is held.
func (k *Kernel) Filesystem() fs.Filesystem {
	return k.fs
}

// Console returns the console.
func (k *Kernel) Console() *Console {
	return k.console
}

// SyscallTable returns the table used to dispatch traps.
func (k *Kernel) SyscallTable() *SyscallTable {
	return k.syscalls
}

// NewFD returns a descriptor id that has never been issued before.
func (k *Kernel) NewFD() int32 {
	return k.nextFD.Add(1)
}

// InstallProgram registers fn under name and creates the executable file
// name whose entry point is fn.
func (k *Kernel) InstallProgram(name string, fn ProgramFunc) error {
	k.programs.Register(name, fn)
	image := EncodeImage(name)
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	if err := k.fs.Create(name, int64(len(image))); err != nil {
		return fmt.Errorf("creating executable %q: %w", name, err)
	}
	f, err := k.fs.Open(name)
	if err != nil {
		return fmt.Errorf("opening executable %q: %w", name, err)
	}
	defer f.Close()
	if n, err := f.Write(image); err != nil || n != len(image) {
		return fmt.Errorf("writing executable %q: wrote %d of %d bytes: %v", name, n, len(image), err)
	}
	return nil
}

// Programs returns the names of the installed programs.
func (k *Kernel) Programs() []string {
	return k.programs.Names()
}

// CreateProcess starts an initial process running cmdline. It has no parent.
func (k *Kernel) CreateProcess(cmdline string) (*Task, error) {
	return k.spawn(nil, cmdline)
}

// Task returns the live task with the given id.
func (k *Kernel) Task(tid ThreadID) (*Task, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.tasks[tid]
	return t, ok
}

// Tasks returns the live tasks ordered by thread id.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	ts := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		ts = append(ts, t)
	}
	k.mu.Unlock()
	sort.Slice(ts, func(i, j int) bool { return ts[i].tid < ts[j].tid })
	return ts
}

// NumTasks returns the number of live tasks.
func (k *Kernel) NumTasks() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tasks)
}

// Wait blocks until every task has exited or the machine is halted. It
// returns the error that halted the machine, if any.
func (k *Kernel) Wait() error {
	k.mu.Lock()
	idle := k.idle
	k.mu.Unlock()
	select {
	case <-idle:
	case <-k.halted:
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.panicErr
}

// taskStarted records a new task goroutine.
func (k *Kernel) taskStarted() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running == 0 {
		k.idle = make(chan struct{})
	}
	k.running++
}

// taskDone records the end of a task goroutine.
func (k *Kernel) taskDone() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running--
	if k.running == 0 {
		close(k.idle)
	}
}

// Halt powers the machine off. Tasks stop the next time they enter the
// kernel.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		log.Infof("Machine halted")
		close(k.halted)
	})
}

// Halted returns a channel that is closed when the machine is halted.
func (k *Kernel) Halted() <-chan struct{} {
	return k.halted
}

// IsHalted returns true if the machine has been halted.
func (k *Kernel) IsHalted() bool {
	select {
	case <-k.halted:
		return true
	default:
		return false
	}
}

// Panicf records a fatal kernel error and halts the machine.
func (k *Kernel) Panicf(format string, v ...any) {
	err := fmt.Errorf("%w: %w", ErrKernelPanic, fmt.Errorf(format, v...))
	log.Warningf("%v", err)
	k.mu.Lock()
	if k.panicErr == nil {
		k.panicErr = err
	}
	k.mu.Unlock()
	k.Halt()
}

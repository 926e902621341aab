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

package kernel

import (
	"errors"
	"runtime"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/frame"
	"teachos.dev/teachos/pkg/sentry/usermem"
)

// UserContext is the user-mode view of a task: its registers and its
// memory. A program touches memory only through it, and a fault kills the
// task with exit status -1, the way a page fault in user mode does.
type UserContext struct {
	t *Task

	// entrySP is the stack pointer at program entry.
	entrySP hostarch.Addr

	// Regs holds the user registers.
	Regs arch.Registers
}

// Name returns the name of the running program.
func (u *UserContext) Name() string {
	return u.t.name
}

// ThreadID returns the id of the running process.
func (u *UserContext) ThreadID() ThreadID {
	return u.t.tid
}

// Syscall traps into the kernel with the frame at Regs.Esp and returns
// Regs.Eax. The caller lays out the syscall number and arguments.
func (u *UserContext) Syscall() uint32 {
	u.t.Trap(&u.Regs)
	return u.Regs.Eax
}

// fault handles a fault taken by user code. Running out of physical memory
// is fatal to the machine; anything else is fatal to the process.
func (u *UserContext) fault(addr hostarch.Addr, err error) {
	if errors.Is(err, frame.ErrPhysicalMemoryExhausted) {
		u.t.k.Panicf("process %d (%s): page fault at %v: %w", u.t.tid, u.t.name, addr, err)
		runtime.Goexit()
	}
	u.t.Kill("page fault at %v: %v", addr, err)
}

// Store writes src to user memory at addr.
func (u *UserContext) Store(addr hostarch.Addr, src []byte) {
	if _, err := u.t.as.CopyOut(addr, src); err != nil {
		u.fault(addr, err)
	}
}

// Load reads len(dst) bytes of user memory at addr.
func (u *UserContext) Load(addr hostarch.Addr, dst []byte) {
	if _, err := u.t.as.CopyIn(addr, dst); err != nil {
		u.fault(addr, err)
	}
}

// StoreWord writes a word at addr.
func (u *UserContext) StoreWord(addr hostarch.Addr, v uint32) {
	if err := usermem.CopyOutWord(u.t.as, addr, v); err != nil {
		u.fault(addr, err)
	}
}

// LoadWord reads the word at addr.
func (u *UserContext) LoadWord(addr hostarch.Addr) uint32 {
	v, err := usermem.CopyInWord(u.t.as, addr)
	if err != nil {
		u.fault(addr, err)
	}
	return v
}

// LoadString reads the NUL-terminated string at addr.
func (u *UserContext) LoadString(addr hostarch.Addr) string {
	s, err := usermem.CopyStringIn(u.t.as, addr, teachos.MaxCmdlineLen)
	if err != nil {
		u.fault(addr, err)
	}
	return s
}

// Push pushes b onto the stack and returns its address.
func (u *UserContext) Push(b []byte) hostarch.Addr {
	u.Regs.Esp -= hostarch.Addr(len(b))
	u.Store(u.Regs.Esp, b)
	return u.Regs.Esp
}

// PushWord pushes a word onto the stack.
func (u *UserContext) PushWord(v uint32) {
	u.Regs.Esp -= teachos.WordSize
	u.StoreWord(u.Regs.Esp, v)
}

// MapPage grows the address space by the zeroed page at va.
func (u *UserContext) MapPage(va hostarch.Addr) error {
	err := u.t.as.MapPage(va)
	if errors.Is(err, frame.ErrPhysicalMemoryExhausted) {
		u.fault(va, err)
	}
	return err
}

// Args returns the argument vector the program was started with, read from
// the initial stack.
func (u *UserContext) Args() []string {
	argc := u.LoadWord(u.entrySP + teachos.WordSize)
	argv := hostarch.Addr(u.LoadWord(u.entrySP + 2*teachos.WordSize))
	args := make([]string, argc)
	for i := range args {
		p := u.LoadWord(argv + hostarch.Addr(i*teachos.WordSize))
		args[i] = u.LoadString(hostarch.Addr(p))
	}
	return args
}

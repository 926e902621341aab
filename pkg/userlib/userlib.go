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

// Package userlib is the user-mode side of the syscall interface. Each
// wrapper lays its arguments out on the user stack above the syscall number,
// traps, and restores the stack pointer.
//
// Strings and buffers passed by value are first pushed onto the user stack,
// so they live in user memory where the kernel can validate them.
package userlib

import (
	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sentry/kernel"
)

// Syscall traps with sysno and args, which are pushed in reverse order so
// that args[0] is just above the syscall number.
func Syscall(u *kernel.UserContext, sysno uint32, args ...uint32) uint32 {
	sp := u.Regs.Esp
	for i := len(args) - 1; i >= 0; i-- {
		u.PushWord(args[i])
	}
	u.PushWord(sysno)
	r := u.Syscall()
	u.Regs.Esp = sp
	return r
}

// PushString pushes s and its terminating NUL onto the stack, leaving the
// stack word aligned, and returns the address of the string.
func PushString(u *kernel.UserContext, s string) hostarch.Addr {
	b := make([]byte, len(s)+1)
	copy(b, s)
	addr := u.Push(b)
	u.Regs.Esp &^= teachos.WordSize - 1
	return addr
}

// withString runs fn with s pushed on the stack.
func withString(u *kernel.UserContext, s string, fn func(addr hostarch.Addr) uint32) uint32 {
	sp := u.Regs.Esp
	r := fn(PushString(u, s))
	u.Regs.Esp = sp
	return r
}

// Halt powers the machine off. It does not return.
func Halt(u *kernel.UserContext) {
	Syscall(u, teachos.SYS_HALT)
}

// Exit exits the process. It does not return.
func Exit(u *kernel.UserContext, status int32) {
	Syscall(u, teachos.SYS_EXIT, uint32(status))
}

// Exec runs cmdline in a child process and returns its pid, or -1.
func Exec(u *kernel.UserContext, cmdline string) int32 {
	return int32(withString(u, cmdline, func(addr hostarch.Addr) uint32 {
		return Syscall(u, teachos.SYS_EXEC, uint32(addr))
	}))
}

// Wait waits for the child pid and returns its exit status, or -1.
func Wait(u *kernel.UserContext, pid int32) int32 {
	return int32(Syscall(u, teachos.SYS_WAIT, uint32(pid)))
}

// Create creates a file of size bytes.
func Create(u *kernel.UserContext, path string, size uint32) bool {
	return withString(u, path, func(addr hostarch.Addr) uint32 {
		return Syscall(u, teachos.SYS_CREATE, uint32(addr), size)
	}) != 0
}

// Remove removes a file.
func Remove(u *kernel.UserContext, path string) bool {
	return withString(u, path, func(addr hostarch.Addr) uint32 {
		return Syscall(u, teachos.SYS_REMOVE, uint32(addr))
	}) != 0
}

// Open opens a file and returns its descriptor, or -1.
func Open(u *kernel.UserContext, path string) int32 {
	return int32(withString(u, path, func(addr hostarch.Addr) uint32 {
		return Syscall(u, teachos.SYS_OPEN, uint32(addr))
	}))
}

// Filesize returns the size of the open file fd, or -1.
func Filesize(u *kernel.UserContext, fd int32) int32 {
	return int32(Syscall(u, teachos.SYS_FILESIZE, uint32(fd)))
}

// Read reads up to size bytes from fd into user memory at buf.
func Read(u *kernel.UserContext, fd int32, buf hostarch.Addr, size uint32) int32 {
	return int32(Syscall(u, teachos.SYS_READ, uint32(fd), uint32(buf), size))
}

// Write writes size bytes of user memory at buf to fd.
func Write(u *kernel.UserContext, fd int32, buf hostarch.Addr, size uint32) int32 {
	return int32(Syscall(u, teachos.SYS_WRITE, uint32(fd), uint32(buf), size))
}

// WriteString writes s to fd from a copy on the stack.
func WriteString(u *kernel.UserContext, fd int32, s string) int32 {
	return int32(withString(u, s, func(addr hostarch.Addr) uint32 {
		return Syscall(u, teachos.SYS_WRITE, uint32(fd), uint32(addr), uint32(len(s)))
	}))
}

// Seek sets the position of fd.
func Seek(u *kernel.UserContext, fd int32, pos uint32) {
	Syscall(u, teachos.SYS_SEEK, uint32(fd), pos)
}

// Tell returns the position of fd.
func Tell(u *kernel.UserContext, fd int32) uint32 {
	return Syscall(u, teachos.SYS_TELL, uint32(fd))
}

// Close closes fd.
func Close(u *kernel.UserContext, fd int32) {
	Syscall(u, teachos.SYS_CLOSE, uint32(fd))
}

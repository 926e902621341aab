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

// Package programs holds the user programs built into tkrun. Each runs in
// user mode and reaches the kernel only through userlib.
package programs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/userlib"
)

// heapBase is the first page above the image. Programs grow their data
// upwards from it.
const heapBase = hostarch.Addr(teachos.ImageBase + hostarch.PageSize)

// ReadyLine is printed by memhog when every page has been touched and it
// is waiting for input.
const ReadyLine = "memhog: ready\n"

var builtin = map[string]kernel.ProgramFunc{
	"echo":   Echo,
	"cat":    Cat,
	"exit":   ExitWith,
	"spawn":  Spawn,
	"memhog": Memhog,
	"badptr": BadPtr,
	"halt":   Halt,
	"mkfile": Mkfile,
	"rm":     Rm,
}

// Names returns the names of the built-in programs in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install installs every built-in program into k.
func Install(k *kernel.Kernel) error {
	for _, name := range Names() {
		if err := k.InstallProgram(name, builtin[name]); err != nil {
			return err
		}
	}
	return nil
}

// growHeap maps n pages at heapBase.
func growHeap(u *kernel.UserContext, n int) bool {
	for i := 0; i < n; i++ {
		if err := u.MapPage(heapBase + hostarch.Addr(i*hostarch.PageSize)); err != nil {
			return false
		}
	}
	return true
}

func printf(u *kernel.UserContext, format string, v ...any) {
	userlib.WriteString(u, teachos.STDOUT_FILENO, fmt.Sprintf(format, v...))
}

// Echo writes its arguments separated by spaces.
func Echo(u *kernel.UserContext) int32 {
	args := u.Args()
	printf(u, "%s\n", strings.Join(args[1:], " "))
	return 0
}

// Cat copies each named file to the console. It fails if a file cannot be
// opened.
func Cat(u *kernel.UserContext) int32 {
	if !growHeap(u, 1) {
		return 1
	}
	status := int32(0)
	for _, name := range u.Args()[1:] {
		fd := userlib.Open(u, name)
		if fd < 0 {
			printf(u, "cat: %s: cannot open\n", name)
			status = 1
			continue
		}
		for {
			n := userlib.Read(u, fd, heapBase, hostarch.PageSize)
			if n <= 0 {
				break
			}
			userlib.Write(u, teachos.STDOUT_FILENO, heapBase, uint32(n))
		}
		userlib.Close(u, fd)
	}
	return status
}

// ExitWith exits with the status given as its argument.
func ExitWith(u *kernel.UserContext) int32 {
	args := u.Args()
	if len(args) < 2 {
		return 0
	}
	status, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return teachos.ExitFailure
	}
	userlib.Exit(u, int32(status))
	return 0
}

// Spawn runs "spawn N cmd args..." : N concurrent children running
// "cmd args...". It returns the number of children that exited non-zero or
// could not start.
func Spawn(u *kernel.UserContext) int32 {
	args := u.Args()
	if len(args) < 3 {
		printf(u, "usage: spawn N cmd [args...]\n")
		return teachos.ExitFailure
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return teachos.ExitFailure
	}
	cmdline := strings.Join(args[2:], " ")
	var pids []int32
	failed := int32(0)
	for i := 0; i < n; i++ {
		pid := userlib.Exec(u, cmdline)
		if pid < 0 {
			failed++
			continue
		}
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		if userlib.Wait(u, pid) != 0 {
			failed++
		}
	}
	return failed
}

// Memhog runs "memhog pages [hold]": it grows its heap by pages pages,
// writes a pattern to each and checks it. With hold it prints ReadyLine and
// waits for a byte of input before checking.
func Memhog(u *kernel.UserContext) int32 {
	args := u.Args()
	if len(args) < 2 {
		return teachos.ExitFailure
	}
	pages, err := strconv.Atoi(args[1])
	if err != nil || pages <= 0 {
		return teachos.ExitFailure
	}
	if !growHeap(u, pages) {
		return teachos.ExitFailure
	}
	for i := 0; i < pages; i++ {
		u.StoreWord(heapBase+hostarch.Addr(i*hostarch.PageSize), uint32(i)^0x5a5a5a5a)
	}
	if len(args) > 2 && args[2] == "hold" {
		printf(u, "%s", ReadyLine)
		sp := u.Regs.Esp
		buf := u.Push(make([]byte, teachos.WordSize))
		userlib.Read(u, teachos.STDIN_FILENO, buf, 1)
		u.Regs.Esp = sp
	}
	for i := 0; i < pages; i++ {
		if u.LoadWord(heapBase+hostarch.Addr(i*hostarch.PageSize)) != uint32(i)^0x5a5a5a5a {
			printf(u, "memhog: page %d corrupted\n", i)
			return 1
		}
	}
	return 0
}

// BadPtr passes a kernel address to write. The kernel kills it.
func BadPtr(u *kernel.UserContext) int32 {
	userlib.Write(u, teachos.STDOUT_FILENO, teachos.PhysBase, 4)
	return 0
}

// Halt powers the machine off.
func Halt(u *kernel.UserContext) int32 {
	userlib.Halt(u)
	return 0
}

// Mkfile runs "mkfile name size [text...]": it creates the file and writes
// the text to it.
func Mkfile(u *kernel.UserContext) int32 {
	args := u.Args()
	if len(args) < 3 {
		return teachos.ExitFailure
	}
	size, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return teachos.ExitFailure
	}
	if !userlib.Create(u, args[1], uint32(size)) {
		return 1
	}
	if len(args) > 3 {
		fd := userlib.Open(u, args[1])
		if fd < 0 {
			return 1
		}
		userlib.WriteString(u, fd, strings.Join(args[3:], " "))
		userlib.Close(u, fd)
	}
	return 0
}

// Rm removes each named file.
func Rm(u *kernel.UserContext) int32 {
	status := int32(0)
	for _, name := range u.Args()[1:] {
		if !userlib.Remove(u, name) {
			status = 1
		}
	}
	return status
}

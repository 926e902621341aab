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

// Package teachos provides syscall tables for the teaching kernel.
package teachos

import (
	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/sentry/syscalls"
)

// Name is the name of the syscall table.
const Name = "teachos"

// Failure values.
const (
	failFalse = 0
	failMinus = -1
)

// Table is the table of teachos syscalls. Each entry reads exactly NumArgs
// argument words from the user stack.
var Table = &kernel.SyscallTable{
	Name: Name,
	Table: map[uintptr]kernel.Syscall{
		teachos.SYS_HALT:     syscalls.Supported("halt", 0, failMinus, Halt),
		teachos.SYS_EXIT:     syscalls.Supported("exit", 1, failMinus, Exit),
		teachos.SYS_EXEC:     syscalls.PartiallySupported("exec", 1, failMinus, Exec, "Images are loaded eagerly; no demand paging from the executable."),
		teachos.SYS_WAIT:     syscalls.Supported("wait", 1, failMinus, Wait),
		teachos.SYS_CREATE:   syscalls.Supported("create", 2, failFalse, Create),
		teachos.SYS_REMOVE:   syscalls.Supported("remove", 1, failFalse, Remove),
		teachos.SYS_OPEN:     syscalls.Supported("open", 1, failMinus, Open),
		teachos.SYS_FILESIZE: syscalls.Supported("filesize", 1, failMinus, Filesize),
		teachos.SYS_READ:     syscalls.Supported("read", 3, failMinus, Read),
		teachos.SYS_WRITE:    syscalls.Supported("write", 3, failMinus, Write),
		teachos.SYS_SEEK:     syscalls.Supported("seek", 2, failMinus, Seek),
		teachos.SYS_TELL:     syscalls.Supported("tell", 1, failMinus, Tell),
		teachos.SYS_CLOSE:    syscalls.Supported("close", 1, failMinus, Close),
	},
}

func init() {
	kernel.RegisterSyscallTable(Table)
}

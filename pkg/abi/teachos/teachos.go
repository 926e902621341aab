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

// Package teachos contains the constants that make up the user ABI of the
// teaching kernel: syscall numbers, reserved descriptors and the layout of a
// user address space.
package teachos

// Syscall numbers. A user program places the number at the lowest address of
// its stack frame (esp[0]) and the arguments in the words above it.
const (
	SYS_HALT     = 0
	SYS_EXIT     = 1
	SYS_EXEC     = 2
	SYS_WAIT     = 3
	SYS_CREATE   = 4
	SYS_REMOVE   = 5
	SYS_OPEN     = 6
	SYS_FILESIZE = 7
	SYS_READ     = 8
	SYS_WRITE    = 9
	SYS_SEEK     = 10
	SYS_TELL     = 11
	SYS_CLOSE    = 12
)

// Reserved descriptors.
const (
	STDIN_FILENO  = 0
	STDOUT_FILENO = 1

	// FirstUserFD is the first descriptor id issued by open. Ids are drawn
	// from a single system-wide counter and are never reused.
	FirstUserFD = 2
)

// User address-space layout.
const (
	// ImageBase is the lowest legal user address: the base of the process
	// image.
	ImageBase = 0x08048000

	// PhysBase is the top of user space. User addresses lie strictly below
	// it; the kernel is mapped above.
	PhysBase = 0xc0000000

	// WordSize is the size in bytes of a machine word, and therefore of each
	// syscall stack slot.
	WordSize = 4

	// MaxSyscallArgs is the largest argument count of any syscall.
	MaxSyscallArgs = 3
)

// Limits on strings copied from user memory, NUL included.
const (
	MaxPathLen    = 256
	MaxCmdlineLen = 4096
)

// ExitFailure is the status recorded for a process terminated by the kernel.
const ExitFailure = -1

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

// Package syscalls is the interface from the application to the kernel.
// Traditionally, syscalls is the interface that is used by applications to
// request services from the kernel of a operating system. User programs
// reach the kernel only through it.
//
// Note that the stubs in this package may merely provide the interface, not
// the actual implementation. It just makes writing syscall stubs
// straightforward.
package syscalls

import (
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/kernel"
)

// Supported returns a syscall that is fully supported. nargs is the number of
// argument words it reads and failure is the value the caller sees when it
// fails.
func Supported(name string, nargs int, failure int32, fn kernel.SyscallFn) kernel.Syscall {
	return kernel.Syscall{
		Name:         name,
		NumArgs:      nargs,
		Fn:           fn,
		FailureValue: failure,
		SupportLevel: kernel.SupportFull,
	}
}

// PartiallySupported returns a syscall that has a partial implementation.
func PartiallySupported(name string, nargs int, failure int32, fn kernel.SyscallFn, note string) kernel.Syscall {
	return kernel.Syscall{
		Name:         name,
		NumArgs:      nargs,
		Fn:           fn,
		FailureValue: failure,
		SupportLevel: kernel.SupportPartial,
		Note:         note,
	}
}

// Error returns a syscall handler that will always give the passed error.
func Error(err error) kernel.SyscallFn {
	return func(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
		return 0, nil, err
	}
}

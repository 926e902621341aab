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
	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/sentry/usermem"
)

// Halt implements halt: it powers the machine off.
func Halt(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, kernel.CtrlHalt, nil
}

// Exit implements exit(status).
func Exit(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	t.PrepareExit(args[0].Int())
	return 0, kernel.CtrlDoExit, nil
}

// Exec implements exec(cmdline). It returns the id of the new process once
// its executable is loaded.
func Exec(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	cmdline, err := usermem.CopyStringIn(t.AddressSpace(), args[0].Pointer(), teachos.MaxCmdlineLen)
	if err != nil {
		return 0, nil, err
	}
	tid, err := t.Exec(cmdline)
	if err != nil {
		return 0, nil, err
	}
	return uintptr(tid), nil, nil
}

// Wait implements wait(pid).
func Wait(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	status, err := t.Wait(kernel.ThreadID(args[0].Int()))
	if err != nil {
		return 0, nil, err
	}
	return uintptr(uint32(status)), nil, nil
}

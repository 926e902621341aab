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
	"strings"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/frame"
)

// Trap handles a syscall trap from user mode. regs is the trapped frame:
// the syscall number is at regs.Esp and its arguments in the words above
// it. On return the result is in regs.Eax.
//
// Trap does not return if the syscall ends the task or halts the machine,
// or if the task is killed for passing a bad pointer or an unknown syscall
// number.
func (t *Task) Trap(regs *arch.Registers) {
	k := t.k
	if k.IsHalted() {
		runtime.Goexit()
	}

	sysno, err := t.as.ReadWord(regs.Esp)
	if err != nil {
		t.Kill("bad stack pointer %v: %v", regs.Esp, err)
	}
	sc := k.syscalls.Lookup(uintptr(sysno))
	if sc == nil {
		unknownSyscallCounter.Increment()
		log.Warningf("Process %d (%s): unknown syscall %d", t.tid, t.name, sysno)
		t.Kill("unknown syscall %d", sysno)
	}

	var args arch.SyscallArguments
	for i := 0; i < sc.NumArgs; i++ {
		addr := regs.Esp + hostarch.Addr((i+1)*teachos.WordSize)
		v, err := t.as.ReadWord(addr)
		if err != nil {
			t.Kill("%s: bad argument %d at %v: %v", sc.Name, i, addr, err)
		}
		args[i].Value = uintptr(v)
	}
	syscallCounter.Increment()

	if k.strace {
		log.Infof("[%4d] %s E %s(%s)", t.tid, t.name, sc.Name, formatArgs(args[:sc.NumArgs]))
	}
	rval, ctrl, err := sc.Fn(t, args)
	if k.strace {
		if err != nil {
			log.Infof("[%4d] %s X %s(%s) = %d (%v)", t.tid, t.name, sc.Name, formatArgs(args[:sc.NumArgs]), sc.FailureValue, err)
		} else {
			log.Infof("[%4d] %s X %s(%s) = %d", t.tid, t.name, sc.Name, formatArgs(args[:sc.NumArgs]), int32(rval))
		}
	}

	if ctrl != nil {
		if ctrl.halt {
			k.Halt()
		}
		runtime.Goexit()
	}
	switch {
	case err == nil:
	case linuxerr.Equals(linuxerr.EFAULT, err):
		t.Kill("%s: %v", sc.Name, err)
	case errors.Is(err, frame.ErrPhysicalMemoryExhausted):
		k.Panicf("process %d (%s): %s: %w", t.tid, t.name, sc.Name, err)
		runtime.Goexit()
	case errors.Is(err, errHalted):
		runtime.Goexit()
	default:
		rval = uintptr(uint32(sc.FailureValue))
	}
	regs.SetReturn(rval)
}

func formatArgs(args []arch.SyscallArgument) string {
	s := make([]string, len(args))
	for i, a := range args {
		s[i] = a.String()
	}
	return strings.Join(s, ", ")
}

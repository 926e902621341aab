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

// Package arch describes the register state of the simulated 32-bit user
// machine and the syscall argument accessors built on it.
package arch

import (
	"fmt"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/hostarch"
)

// Registers is the user register state visible to the kernel at a trap.
type Registers struct {
	// Esp is the user stack pointer. At a syscall trap it points at the
	// syscall number.
	Esp hostarch.Addr

	// Eax holds the syscall return value.
	Eax uint32
}

// Return returns the return value for a system call.
func (r *Registers) Return() uintptr {
	return uintptr(r.Eax)
}

// SetReturn sets the return value for a system call. Only the low 32 bits are
// kept, so -1 becomes 0xffffffff.
func (r *Registers) SetReturn(value uintptr) {
	r.Eax = uint32(value)
}

// String implements fmt.Stringer.String.
func (r *Registers) String() string {
	return fmt.Sprintf("esp=%v eax=%#x", r.Esp, r.Eax)
}

// SyscallArgument is an argument supplied to a syscall implementation. The
// methods used to access the arguments are named after the ***C type name***
// and they convert to the closest Go type available. For example, Int()
// refers to a 32-bit signed integer argument represented in Go as an int32.
//
// Using the accessor methods guarantees that the conversion between types is
// correct, taking into account size and signedness (i.e., zero-extension vs
// signed-extension).
type SyscallArgument struct {
	// Prefer to use accessor methods instead of 'Value' directly.
	Value uintptr
}

// SyscallArguments represents the set of arguments passed to a syscall.
type SyscallArguments [teachos.MaxSyscallArgs]SyscallArgument

// Pointer returns the hostarch.Addr representation of a pointer argument.
func (a SyscallArgument) Pointer() hostarch.Addr {
	return hostarch.Addr(uint32(a.Value))
}

// Int returns the int32 representation of a 32-bit signed integer argument.
func (a SyscallArgument) Int() int32 {
	return int32(a.Value)
}

// Uint returns the uint32 representation of a 32-bit unsigned integer argument.
func (a SyscallArgument) Uint() uint32 {
	return uint32(a.Value)
}

// SizeT returns the uint representation of a size_t argument.
func (a SyscallArgument) SizeT() uint {
	return uint(uint32(a.Value))
}

// String implements fmt.Stringer.String.
func (a SyscallArgument) String() string {
	return fmt.Sprintf("%#x", a.Value)
}

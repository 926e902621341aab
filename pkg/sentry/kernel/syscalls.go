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
	"fmt"
	"sort"

	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sync"
)

// SyscallFn is a syscall implementation.
type SyscallFn func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error)

// SyscallControl is returned by syscalls to control the behavior of
// Task.Trap. A non-nil SyscallControl means the calling thread does not
// return to user mode.
type SyscallControl struct {
	// halt powers the machine off.
	halt bool
}

var (
	// CtrlDoExit is returned by the implementations of the exit syscall
	// after Task.PrepareExit has run.
	CtrlDoExit = &SyscallControl{}

	// CtrlHalt is returned by the implementation of the halt syscall.
	CtrlHalt = &SyscallControl{halt: true}
)

// SyscallSupportLevel is a syscall support levels.
type SyscallSupportLevel int

// String returns a human readable representation of the support level.
func (l SyscallSupportLevel) String() string {
	switch l {
	case SupportUnimplemented:
		return "Unimplemented"
	case SupportPartial:
		return "Partial Support"
	case SupportFull:
		return "Full Support"
	default:
		return "Undocumented"
	}
}

const (
	// SupportUndocumented indicates the syscall is not documented.
	SupportUndocumented = iota

	// SupportUnimplemented indicates the syscall is unimplemented.
	SupportUnimplemented

	// SupportPartial indicates the syscall is partially supported.
	SupportPartial

	// SupportFull indicates the syscall is fully supported.
	SupportFull
)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// NumArgs is the number of argument words read from the user stack
	// above the syscall number.
	NumArgs int

	// Fn is the implementation of the syscall.
	Fn SyscallFn

	// FailureValue is returned to the user when Fn fails with an error that
	// is not fatal to the process.
	FailureValue int32

	// SupportLevel is the level of support implemented in gVisor.
	SupportLevel SyscallSupportLevel

	// Note describes the compatibility of the syscall.
	Note string
}

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Name identifies the table.
	Name string

	// Table is the collection of functions.
	Table map[uintptr]Syscall
}

// allSyscallTables contains all known tables.
var (
	tablesMu         sync.Mutex
	allSyscallTables []*SyscallTable
)

// SyscallTables returns a read-only slice of registered SyscallTables.
func SyscallTables() []*SyscallTable {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	return append([]*SyscallTable(nil), allSyscallTables...)
}

// LookupSyscallTable returns the SyscallTable registered under name.
func LookupSyscallTable(name string) (*SyscallTable, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	for _, s := range allSyscallTables {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// RegisterSyscallTable registers a new syscall table for use by a Kernel.
func RegisterSyscallTable(s *SyscallTable) {
	if err := s.validate(); err != nil {
		panic(fmt.Sprintf("invalid syscall table %q: %v", s.Name, err))
	}
	tablesMu.Lock()
	defer tablesMu.Unlock()
	allSyscallTables = append(allSyscallTables, s)
}

func (s *SyscallTable) validate() error {
	for sysno, sc := range s.Table {
		if sc.Fn == nil {
			return fmt.Errorf("syscall %d (%s) has no implementation", sysno, sc.Name)
		}
		if sc.NumArgs < 0 || sc.NumArgs > len(arch.SyscallArguments{}) {
			return fmt.Errorf("syscall %d (%s) takes %d arguments", sysno, sc.Name, sc.NumArgs)
		}
	}
	return nil
}

// Lookup returns the syscall registered for sysno, or nil.
func (s *SyscallTable) Lookup(sysno uintptr) *Syscall {
	sc, ok := s.Table[sysno]
	if !ok {
		return nil
	}
	return &sc
}

// Numbers returns the syscall numbers in the table in increasing order.
func (s *SyscallTable) Numbers() []uintptr {
	nums := make([]uintptr, 0, len(s.Table))
	for sysno := range s.Table {
		nums = append(nums, sysno)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

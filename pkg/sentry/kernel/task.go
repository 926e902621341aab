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
	"teachos.dev/teachos/pkg/sentry/fs"
	"teachos.dev/teachos/pkg/sentry/mm"
	"teachos.dev/teachos/pkg/sync"
)

// Task represents a user process. Each process runs one thread of
// execution, on its own goroutine.
type Task struct {
	k *Kernel

	tid  ThreadID
	name string

	mu sync.Mutex

	// children holds the children that have not been waited for. It is nil
	// after the task exits, which detaches them. It is protected by mu.
	children map[ThreadID]*Task

	// exitStatus is valid once exited is closed.
	exitStatus int32
	exited     chan struct{}

	as      *mm.AddressSpace
	fdTable FDTable

	// exe is the running executable, kept open with writes denied. It is
	// protected by k.FSLock.
	exe fs.File

	prog ProgramFunc
	uc   UserContext
}

// Kernel returns the task's kernel.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// ThreadID returns the task's id.
func (t *Task) ThreadID() ThreadID {
	return t.tid
}

// Name returns the task's name, the first word of its command line.
func (t *Task) Name() string {
	return t.name
}

// AddressSpace returns the task's address space.
func (t *Task) AddressSpace() *mm.AddressSpace {
	return t.as
}

// FDTable returns the task's descriptor table.
func (t *Task) FDTable() *FDTable {
	return &t.fdTable
}

// Exited returns a channel that is closed when the task has exited.
func (t *Task) Exited() <-chan struct{} {
	return t.exited
}

// ExitStatus returns the task's exit status.
//
// Preconditions: the task has exited.
func (t *Task) ExitStatus() int32 {
	return t.exitStatus
}

// run is the task goroutine. Returning from the program is an implicit exit.
func (t *Task) run() {
	defer t.k.taskDone()
	status := t.prog(&t.uc)
	t.PrepareExit(status)
}

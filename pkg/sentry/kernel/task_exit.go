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
	"fmt"
	"runtime"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/log"
)

// errHalted is returned by blocking operations interrupted by a halt.
var errHalted = errors.New("machine halted")

// PrepareExit tears the task down and records status for its parent. It
// prints the exit notice, closes every descriptor, releases the executable
// and the address space, and detaches the task's children.
//
// PrepareExit is called on the task goroutine, which must not return to user
// mode afterwards.
func (t *Task) PrepareExit(status int32) {
	t.k.console.Printf("%s: exit(%d)\n", t.name, status)

	handles := t.fdTable.RemoveAll()
	t.k.FSLock.Lock()
	for _, h := range handles {
		h.File.Close()
	}
	if t.exe != nil {
		t.exe.Close()
		t.exe = nil
	}
	t.k.FSLock.Unlock()

	t.as.Release()

	t.mu.Lock()
	t.children = nil
	t.mu.Unlock()

	t.exitStatus = status
	close(t.exited)

	t.k.mu.Lock()
	delete(t.k.tasks, t.tid)
	t.k.mu.Unlock()
	log.Debugf("Process %d (%s) exited with status %d", t.tid, t.name, status)
}

// Exit exits the task with status. It does not return.
func (t *Task) Exit(status int32) {
	t.PrepareExit(status)
	runtime.Goexit()
}

// Kill terminates the task for misbehaving. It does not return.
func (t *Task) Kill(format string, v ...any) {
	killedCounter.Increment()
	log.Infof("Process %d (%s) killed: %s", t.tid, t.name, fmt.Sprintf(format, v...))
	t.Exit(teachos.ExitFailure)
}

// Wait waits for the child tid to exit and returns its status. Each child
// can be waited for once; any other tid fails with ECHILD.
func (t *Task) Wait(tid ThreadID) (int32, error) {
	t.mu.Lock()
	child, ok := t.children[tid]
	if ok {
		delete(t.children, tid)
	}
	t.mu.Unlock()
	if !ok {
		return 0, linuxerr.ECHILD
	}
	select {
	case <-child.exited:
		return child.exitStatus, nil
	case <-t.k.halted:
		return 0, errHalted
	}
}

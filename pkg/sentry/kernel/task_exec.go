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
	"strings"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/fs"
	"teachos.dev/teachos/pkg/sentry/mm"
)

const (
	// stackTop is the address just above the initial stack page.
	stackTop = hostarch.Addr(teachos.PhysBase)

	// stackBase is the lowest address of the initial stack page.
	stackBase = stackTop - hostarch.PageSize
)

// Exec starts a child of t running cmdline and returns its id.
func (t *Task) Exec(cmdline string) (ThreadID, error) {
	child, err := t.k.spawn(t, cmdline)
	if err != nil {
		return 0, err
	}
	return child.tid, nil
}

// load opens the executable name, checks its image and denies writes to it
// while it runs. It returns the open executable, the program it names and
// the image bytes.
func (k *Kernel) load(name string) (fs.File, ProgramFunc, []byte, error) {
	k.FSLock.Lock()
	defer k.FSLock.Unlock()

	f, err := k.fs.Open(name)
	if err != nil {
		return nil, nil, nil, err
	}
	size := f.Size()
	if size <= 0 || size > hostarch.PageSize {
		f.Close()
		return nil, nil, nil, linuxerr.ENOEXEC
	}
	image := make([]byte, size)
	if n, err := f.Read(image); err != nil || int64(n) != size {
		f.Close()
		return nil, nil, nil, linuxerr.ENOEXEC
	}
	entry, err := decodeImage(image)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}
	prog, ok := k.programs.Lookup(entry)
	if !ok {
		f.Close()
		return nil, nil, nil, linuxerr.ENOEXEC
	}
	f.DenyWrite()
	return f, prog, image, nil
}

// spawn creates a task running cmdline and starts it. parent may be nil.
func (k *Kernel) spawn(parent *Task, cmdline string) (*Task, error) {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return nil, linuxerr.ENOENT
	}
	if k.IsHalted() {
		return nil, linuxerr.ESRCH
	}

	exe, prog, image, err := k.load(argv[0])
	if err != nil {
		log.Debugf("Loading %q failed: %v", argv[0], err)
		return nil, err
	}

	t := &Task{
		k:        k,
		name:     argv[0],
		children: make(map[ThreadID]*Task),
		exited:   make(chan struct{}),
		as:       mm.NewAddressSpace(k.frames, k.mem, k.swap),
		exe:      exe,
		prog:     prog,
	}
	esp, err := t.setupImage(image, argv)
	if err != nil {
		t.as.Release()
		k.FSLock.Lock()
		exe.Close()
		k.FSLock.Unlock()
		return nil, err
	}
	t.uc = UserContext{
		t:       t,
		entrySP: esp,
		Regs:    arch.Registers{Esp: esp},
	}

	k.mu.Lock()
	k.nextTID++
	t.tid = k.nextTID
	k.tasks[t.tid] = t
	k.mu.Unlock()
	if parent != nil {
		parent.mu.Lock()
		parent.children[t.tid] = t
		parent.mu.Unlock()
	}

	startedCounter.Increment()
	log.Debugf("Started process %d: %q", t.tid, cmdline)
	k.taskStarted()
	go t.run()
	return t, nil
}

// setupImage maps the image at ImageBase and the initial stack page, and
// lays the arguments out on the stack:
//
//	esp+0:   fake return address
//	esp+4:   argc
//	esp+8:   argv
//	argv[0..argc-1], NULL
//	word alignment padding
//	argument strings
//
// It returns the initial stack pointer.
func (t *Task) setupImage(image []byte, argv []string) (hostarch.Addr, error) {
	if err := t.as.MapPage(teachos.ImageBase); err != nil {
		return 0, err
	}
	if _, err := t.as.CopyOut(teachos.ImageBase, image); err != nil {
		return 0, err
	}
	if err := t.as.MapPage(stackBase); err != nil {
		return 0, err
	}

	strLen := 0
	for _, arg := range argv {
		strLen += len(arg) + 1
	}
	strLen = (strLen + teachos.WordSize - 1) &^ (teachos.WordSize - 1)
	words := 3 + len(argv) + 1
	frameLen := strLen + words*teachos.WordSize
	if frameLen > hostarch.PageSize {
		return 0, linuxerr.E2BIG
	}

	esp := stackTop - hostarch.Addr(frameLen)
	buf := make([]byte, frameLen)
	strAddr := stackTop
	ptrs := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		strAddr -= hostarch.Addr(len(argv[i]) + 1)
		ptrs[i] = uint32(strAddr)
		copy(buf[strAddr-esp:], argv[i])
	}

	putWord := func(i int, v uint32) {
		hostarch.ByteOrder.PutUint32(buf[i*teachos.WordSize:], v)
	}
	putWord(0, 0)
	putWord(1, uint32(len(argv)))
	putWord(2, uint32(esp)+3*teachos.WordSize)
	for i, p := range ptrs {
		putWord(3+i, p)
	}
	putWord(3+len(argv), 0)

	if _, err := t.as.CopyOut(esp, buf); err != nil {
		return 0, err
	}
	return esp, nil
}

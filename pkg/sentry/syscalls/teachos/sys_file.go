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
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/sentry/usermem"
)

// copyInPath copies a path from user memory. It must be called without the
// filesystem lock.
func copyInPath(t *kernel.Task, addr hostarch.Addr) (string, error) {
	return usermem.CopyStringIn(t.AddressSpace(), addr, teachos.MaxPathLen)
}

// Create implements create(path, size).
func Create(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, err := copyInPath(t, args[0].Pointer())
	if err != nil {
		return 0, nil, err
	}
	size := args[1].Uint()

	k := t.Kernel()
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	if err := k.Filesystem().Create(path, int64(size)); err != nil {
		return 0, nil, err
	}
	return 1, nil, nil
}

// Remove implements remove(path).
func Remove(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, err := copyInPath(t, args[0].Pointer())
	if err != nil {
		return 0, nil, err
	}

	k := t.Kernel()
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	if err := k.Filesystem().Remove(path); err != nil {
		return 0, nil, err
	}
	return 1, nil, nil
}

// Open implements open(path). The descriptor is allocated only once the
// file is open.
func Open(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, err := copyInPath(t, args[0].Pointer())
	if err != nil {
		return 0, nil, err
	}

	k := t.Kernel()
	k.FSLock.Lock()
	f, err := k.Filesystem().Open(path)
	k.FSLock.Unlock()
	if err != nil {
		return 0, nil, err
	}

	fd := k.NewFD()
	t.FDTable().Add(&kernel.Handle{File: f, FD: fd, Owner: t})
	return uintptr(fd), nil, nil
}

// Filesize implements filesize(fd).
func Filesize(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	h, ok := t.FDTable().Get(args[0].Int())
	if !ok {
		return 0, nil, linuxerr.EBADF
	}

	k := t.Kernel()
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	return uintptr(h.File.Size()), nil, nil
}

// Close implements close(fd).
func Close(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	h, ok := t.FDTable().Remove(args[0].Int())
	if !ok {
		return 0, nil, linuxerr.EBADF
	}

	k := t.Kernel()
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	return 0, nil, h.File.Close()
}

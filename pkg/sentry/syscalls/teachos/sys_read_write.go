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
	"teachos.dev/teachos/pkg/sentry/fs"
	"teachos.dev/teachos/pkg/sentry/kernel"
)

// chunk returns the length of the next piece of an I/O at addr with n bytes
// left, which ends at n or at the end of addr's page.
func chunk(addr hostarch.Addr, n uint) uint {
	if left := uint(hostarch.PageSize - addr.PageOffset()); left < n {
		return left
	}
	return n
}

// Read implements read(fd, buffer, size).
//
// The whole buffer is validated before anything is read. A file is read
// one page of the buffer at a time, with the filesystem lock held only
// while reading the file.
func Read(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	as := t.AddressSpace()
	if err := as.CheckRange(addr, uint64(size)); err != nil {
		return 0, nil, err
	}

	switch fd {
	case teachos.STDIN_FILENO:
		buf := make([]byte, size)
		n, err := t.Kernel().Console().Read(buf)
		if err != nil {
			return 0, nil, linuxerr.EIO
		}
		if n > 0 {
			if _, err := as.CopyOut(addr, buf[:n]); err != nil {
				return 0, nil, err
			}
		}
		return uintptr(n), nil, nil
	case teachos.STDOUT_FILENO:
		return 0, nil, linuxerr.EBADF
	}

	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, nil, linuxerr.EBADF
	}
	n, err := readFile(t, h.File, addr, size)
	return uintptr(n), nil, err
}

func readFile(t *kernel.Task, f fs.File, addr hostarch.Addr, size uint) (uint, error) {
	k := t.Kernel()
	as := t.AddressSpace()
	buf := make([]byte, hostarch.PageSize)
	var done uint
	for done < size {
		cur := addr + hostarch.Addr(done)
		want := chunk(cur, size-done)

		k.FSLock.Lock()
		n, err := f.Read(buf[:want])
		k.FSLock.Unlock()
		if err != nil {
			if done > 0 {
				break
			}
			return 0, err
		}
		if n == 0 {
			break
		}
		if _, err := as.CopyOut(cur, buf[:n]); err != nil {
			return 0, err
		}
		done += uint(n)
		if uint(n) < want {
			break
		}
	}
	return done, nil
}

// Write implements write(fd, buffer, size).
//
// A write to the console is delivered in a single piece. A write to a file
// copies one page of the buffer at a time outside the filesystem lock, then
// writes it with the lock held. Files do not grow, so a write may be short.
func Write(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	as := t.AddressSpace()
	if err := as.CheckRange(addr, uint64(size)); err != nil {
		return 0, nil, err
	}

	switch fd {
	case teachos.STDOUT_FILENO:
		buf := make([]byte, size)
		if _, err := as.CopyIn(addr, buf); err != nil {
			return 0, nil, err
		}
		n, err := t.Kernel().Console().Write(buf)
		if err != nil {
			return 0, nil, linuxerr.EIO
		}
		return uintptr(n), nil, nil
	case teachos.STDIN_FILENO:
		return 0, nil, linuxerr.EBADF
	}

	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, nil, linuxerr.EBADF
	}
	n, err := writeFile(t, h.File, addr, size)
	return uintptr(n), nil, err
}

func writeFile(t *kernel.Task, f fs.File, addr hostarch.Addr, size uint) (uint, error) {
	k := t.Kernel()
	as := t.AddressSpace()
	buf := make([]byte, hostarch.PageSize)
	var done uint
	for done < size {
		cur := addr + hostarch.Addr(done)
		want := chunk(cur, size-done)
		if _, err := as.CopyIn(cur, buf[:want]); err != nil {
			return 0, err
		}

		k.FSLock.Lock()
		n, err := f.Write(buf[:want])
		k.FSLock.Unlock()
		if err != nil {
			if done > 0 {
				break
			}
			return 0, err
		}
		done += uint(n)
		if uint(n) < want {
			break
		}
	}
	return done, nil
}

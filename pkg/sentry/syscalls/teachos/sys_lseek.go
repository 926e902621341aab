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
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/sentry/arch"
	"teachos.dev/teachos/pkg/sentry/kernel"
)

// Seek implements seek(fd, position).
func Seek(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	h, ok := t.FDTable().Get(args[0].Int())
	if !ok {
		return 0, nil, linuxerr.EBADF
	}
	pos := int64(args[1].Uint())

	k := t.Kernel()
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	h.File.Seek(pos)
	return 0, nil, nil
}

// Tell implements tell(fd).
func Tell(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	h, ok := t.FDTable().Get(args[0].Int())
	if !ok {
		return 0, nil, linuxerr.EBADF
	}

	k := t.Kernel()
	k.FSLock.Lock()
	defer k.FSLock.Unlock()
	return uintptr(uint32(h.File.Tell())), nil, nil
}

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
	"bytes"
	"fmt"
	"sort"

	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/sync"
)

// ProgramFunc is the body of a user program. It runs in user mode on the
// goroutine of its task and reaches the kernel only through u.Syscall. The
// returned value is passed to exit.
type ProgramFunc func(u *UserContext) int32

// imageMagic starts every executable image.
const imageMagic = "\x7fTKX"

// EncodeImage returns the bytes of an executable whose entry point is the
// registered program named entry.
func EncodeImage(entry string) []byte {
	b := make([]byte, 0, len(imageMagic)+len(entry)+1)
	b = append(b, imageMagic...)
	b = append(b, entry...)
	return append(b, 0)
}

// decodeImage returns the entry point named in an executable image.
func decodeImage(image []byte) (string, error) {
	if !bytes.HasPrefix(image, []byte(imageMagic)) {
		return "", linuxerr.ENOEXEC
	}
	rest := image[len(imageMagic):]
	i := bytes.IndexByte(rest, 0)
	if i <= 0 {
		return "", linuxerr.ENOEXEC
	}
	return string(rest[:i]), nil
}

// Registry maps entry point names to program bodies. It stands in for the
// machine code of executables.
type Registry struct {
	mu       sync.Mutex
	programs map[string]ProgramFunc
}

// Register adds fn under entry. Registering an entry twice panics.
func (r *Registry) Register(entry string, fn ProgramFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.programs == nil {
		r.programs = make(map[string]ProgramFunc)
	}
	if _, ok := r.programs[entry]; ok {
		panic(fmt.Sprintf("program %q registered twice", entry))
	}
	r.programs[entry] = fn
}

// Lookup returns the program registered under entry.
func (r *Registry) Lookup(entry string) (ProgramFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.programs[entry]
	return fn, ok
}

// Names returns the registered entry points in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

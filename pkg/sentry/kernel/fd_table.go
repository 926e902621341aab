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
	"teachos.dev/teachos/pkg/sync"
)

// Handle is an open file held by a process under a descriptor id.
type Handle struct {
	File  fs.File
	FD    int32
	Owner *Task
}

// FDTable is the per-process table of open files. Handles are kept in
// issuance order, so descriptor ids are increasing through the table.
type FDTable struct {
	mu      sync.Mutex
	handles []*Handle
}

// Add appends h. Its id must be greater than every id in the table.
func (f *FDTable) Add(h *Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.handles); n > 0 && f.handles[n-1].FD >= h.FD {
		panic("descriptor ids must be issued in increasing order")
	}
	f.handles = append(f.handles, h)
}

func (f *FDTable) indexLocked(fd int32) int {
	for i, h := range f.handles {
		if h.FD == fd {
			return i
		}
	}
	return -1
}

// Get returns the handle for fd.
func (f *FDTable) Get(fd int32) (*Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexLocked(fd); i >= 0 {
		return f.handles[i], true
	}
	return nil, false
}

// Remove removes and returns the handle for fd. The caller closes its file.
func (f *FDTable) Remove(fd int32) (*Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(fd)
	if i < 0 {
		return nil, false
	}
	h := f.handles[i]
	f.handles = append(f.handles[:i], f.handles[i+1:]...)
	return h, true
}

// RemoveAll empties the table and returns every handle that was in it.
func (f *FDTable) RemoveAll() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs := f.handles
	f.handles = nil
	return hs
}

// Len returns the number of open descriptors.
func (f *FDTable) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// FDs returns the open descriptor ids in issuance order.
func (f *FDTable) FDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	fds := make([]int32, 0, len(f.handles))
	for _, h := range f.handles {
		fds = append(fds, h.FD)
	}
	return fds
}

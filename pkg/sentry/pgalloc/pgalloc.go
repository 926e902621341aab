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

// Package pgalloc contains the page allocator for the simulated physical
// memory.
//
// Physical memory is a single byte array split into two pools. The kernel
// pool backs kernel data and is never subject to eviction; the user pool
// backs user pages and is managed through the frame table.
package pgalloc

import (
	"fmt"

	"teachos.dev/teachos/pkg/bitmap"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sync"
)

// Pool identifies one of the physical page pools.
type Pool int

// Pools.
const (
	KernelPool Pool = iota
	UserPool
)

// String implements fmt.Stringer.String.
func (p Pool) String() string {
	switch p {
	case KernelPool:
		return "kernel"
	case UserPool:
		return "user"
	default:
		return fmt.Sprintf("Pool(%d)", int(p))
	}
}

// pool is a contiguous run of pages tracked by a bitmap.
type pool struct {
	// base is the physical address of the first page.
	base hostarch.PhysAddr

	// used has a bit set for every allocated page.
	used bitmap.Bitmap
}

func (p *pool) contains(pa hostarch.PhysAddr) bool {
	return pa >= p.base && pa < p.base+hostarch.PhysAddr(p.used.Size())*hostarch.PageSize
}

// PhysicalMemory is the simulated RAM of the machine.
type PhysicalMemory struct {
	// mem is the backing store. It is allocated once and never resized.
	mem []byte

	mu    sync.Mutex
	pools [2]pool
}

// New returns physical memory with kernelPages pages in the kernel pool
// followed by userPages pages in the user pool.
func New(kernelPages, userPages uint32) *PhysicalMemory {
	total := uint64(kernelPages) + uint64(userPages)
	pm := &PhysicalMemory{
		mem: make([]byte, total*hostarch.PageSize),
	}
	pm.pools[KernelPool] = pool{base: 0, used: bitmap.New(kernelPages)}
	pm.pools[UserPool] = pool{
		base: hostarch.PhysAddr(uint64(kernelPages) * hostarch.PageSize),
		used: bitmap.New(userPages),
	}
	log.Infof("Physical memory: %d kernel pages, %d user pages", kernelPages, userPages)
	return pm
}

// Allocate returns the lowest free page of the given pool, zeroed. It fails
// with ENOMEM when the pool is exhausted.
func (pm *PhysicalMemory) Allocate(p Pool) (hostarch.PhysAddr, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pl := &pm.pools[p]
	idx, ok := pl.used.Claim()
	if !ok {
		return 0, linuxerr.ENOMEM
	}
	pa := pl.base + hostarch.PhysAddr(idx)*hostarch.PageSize
	clear(pm.mem[pa : pa+hostarch.PageSize])
	return pa, nil
}

// Free returns the page at pa to its pool. It panics if pa was not allocated.
func (pm *PhysicalMemory) Free(pa hostarch.PhysAddr) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if !pa.IsPageAligned() {
		panic(fmt.Sprintf("freeing unaligned page %v", pa))
	}
	for i := range pm.pools {
		pl := &pm.pools[i]
		if !pl.contains(pa) {
			continue
		}
		idx := uint32((pa - pl.base) / hostarch.PageSize)
		if !pl.used.IsSet(idx) {
			panic(fmt.Sprintf("double free of %s page %v", Pool(i), pa))
		}
		pl.used.Remove(idx)
		return
	}
	panic(fmt.Sprintf("freeing page %v outside physical memory", pa))
}

// Bytes returns the contents of the page at pa. The caller must own the page.
func (pm *PhysicalMemory) Bytes(pa hostarch.PhysAddr) []byte {
	if !pa.IsPageAligned() || uint64(pa)+hostarch.PageSize > uint64(len(pm.mem)) {
		panic(fmt.Sprintf("page %v outside physical memory", pa))
	}
	return pm.mem[pa : pa+hostarch.PageSize : pa+hostarch.PageSize]
}

// Available returns the number of free pages in pool p.
func (pm *PhysicalMemory) Available(p Pool) uint32 {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pl := &pm.pools[p]
	return pl.used.Size() - pl.used.GetNumOnes()
}

// Capacity returns the number of pages in pool p.
func (pm *PhysicalMemory) Capacity(p Pool) uint32 {
	return pm.pools[p].used.Size()
}

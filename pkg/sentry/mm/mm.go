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

// Package mm implements the user address space of a process: its page table,
// the validation of user pointers against it, and copying to and from user
// memory with demand paging through the frame table.
//
// Lock order:
//
//	frame.Table.mu
//	  AddressSpace.mu
//	    swap store locks
//
// AddressSpace.mu is never held while calling into the frame table.
package mm

import (
	"fmt"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sentry/frame"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sentry/swap"
	"teachos.dev/teachos/pkg/sync"
)

// pte is a page table entry. A page is in exactly one of three states:
// resident (present), swapped out (swapped), or a zero page that has never
// been written and whose frame was reclaimed (neither).
type pte struct {
	present bool
	pa      hostarch.PhysAddr

	// dirty is set when the resident contents differ from what eviction
	// could reconstruct (swap or zeroes).
	dirty bool

	swapped bool
	slot    swap.Slot
}

// AddressSpace is the address space of one process.
type AddressSpace struct {
	frames *frame.Table
	mem    *pgalloc.PhysicalMemory

	// store is where dirty pages go on eviction. It may be nil, in which
	// case evicting a dirty page fails.
	store swap.Store

	mu sync.Mutex

	// pages is the page table, keyed by page-aligned user address. It is
	// nil once the address space is released.
	pages map[hostarch.Addr]*pte
}

var _ frame.Owner = (*AddressSpace)(nil)

// NewAddressSpace returns an empty address space whose pages are backed by
// frames from frames, stored in mem and swapped to store.
func NewAddressSpace(frames *frame.Table, mem *pgalloc.PhysicalMemory, store swap.Store) *AddressSpace {
	return &AddressSpace{
		frames: frames,
		mem:    mem,
		store:  store,
		pages:  make(map[hostarch.Addr]*pte),
	}
}

// MapPage adds the page at va to the address space, backed by a zeroed
// frame.
func (as *AddressSpace) MapPage(va hostarch.Addr) error {
	if !va.IsPageAligned() || va < teachos.ImageBase || va >= teachos.PhysBase {
		return linuxerr.EINVAL
	}
	as.mu.Lock()
	if as.pages == nil {
		as.mu.Unlock()
		return linuxerr.ESRCH
	}
	if _, ok := as.pages[va]; ok {
		as.mu.Unlock()
		return linuxerr.EEXIST
	}
	p := &pte{}
	as.pages[va] = p
	as.mu.Unlock()

	pa, err := as.frames.Allocate(as, va, frame.AllocOpts{User: true, Pinned: true})
	if err != nil {
		as.mu.Lock()
		delete(as.pages, va)
		as.mu.Unlock()
		return err
	}
	as.mu.Lock()
	p.present = true
	p.pa = pa
	as.mu.Unlock()
	as.frames.Unpin(pa)
	return nil
}

// Evict implements frame.Owner.Evict.
//
// Preconditions: the frame lock is held.
func (as *AddressSpace) Evict(va hostarch.Addr, pa hostarch.PhysAddr) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, ok := as.pages[va]
	if !ok || !p.present || p.pa != pa {
		return fmt.Errorf("page %v is not mapped to frame %v", va, pa)
	}
	if p.dirty {
		if as.store == nil {
			return fmt.Errorf("page %v is dirty and there is no swap", va)
		}
		slot, err := as.store.Write(as.mem.Bytes(pa))
		if err != nil {
			return fmt.Errorf("swapping out page %v: %w", va, err)
		}
		p.swapped = true
		p.slot = slot
		log.Debugf("Page %v swapped out to slot %d", va, slot)
	}
	p.present = false
	p.pa = 0
	p.dirty = false
	return nil
}

// Release frees every frame and swap slot held by the address space. The
// address space must not be used afterwards.
func (as *AddressSpace) Release() {
	n := as.frames.ReleaseOwner(as)

	as.mu.Lock()
	defer as.mu.Unlock()
	swapped := 0
	for _, p := range as.pages {
		if p.swapped {
			as.store.Free(p.slot)
			swapped++
		}
	}
	as.pages = nil
	log.Debugf("Address space released: %d frames, %d swap slots", n, swapped)
}

// Usage describes how the pages of an address space are backed.
type Usage struct {
	Mapped   int
	Resident int
	Swapped  int
}

// Usage returns the current page counts.
func (as *AddressSpace) Usage() Usage {
	as.mu.Lock()
	defer as.mu.Unlock()
	u := Usage{Mapped: len(as.pages)}
	for _, p := range as.pages {
		if p.present {
			u.Resident++
		}
		if p.swapped {
			u.Swapped++
		}
	}
	return u
}

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

package mm

import (
	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sentry/frame"
	"teachos.dev/teachos/pkg/sentry/usermem"
)

var _ usermem.IO = (*AddressSpace)(nil)

// CheckIORange is similar to hostarch.Addr.ToRange, but also requires the
// range to lie within [ImageBase, PhysBase).
func CheckIORange(addr hostarch.Addr, length uint64) (hostarch.AddrRange, bool) {
	ar, ok := addr.ToRange(length)
	return ar, ok && ar.Start >= teachos.ImageBase && ar.End <= teachos.PhysBase
}

// mappedLocked returns true if the page containing addr has a page table
// entry.
//
// Preconditions: as.mu must be locked.
func (as *AddressSpace) mappedLocked(addr hostarch.Addr) bool {
	_, ok := as.pages[addr.RoundDown()]
	return ok
}

// CheckAddr returns EFAULT unless addr is a user address on a page owned by
// the address space. A page that is swapped out is still owned. CheckAddr
// never blocks on the frame lock.
func (as *AddressSpace) CheckAddr(addr hostarch.Addr) error {
	if addr < teachos.ImageBase || addr >= teachos.PhysBase {
		return linuxerr.EFAULT
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	if !as.mappedLocked(addr) {
		return linuxerr.EFAULT
	}
	return nil
}

// CheckRange validates [addr, addr+length) one page at a time and fails at
// the first page that is not owned. A zero length validates addr alone.
func (as *AddressSpace) CheckRange(addr hostarch.Addr, length uint64) error {
	if length == 0 {
		return as.CheckAddr(addr)
	}
	ar, ok := CheckIORange(addr, length)
	if !ok {
		return linuxerr.EFAULT
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	for page := ar.Start.RoundDown(); page < ar.End; page += hostarch.PageSize {
		if !as.mappedLocked(page) {
			return linuxerr.EFAULT
		}
	}
	return nil
}

// pinPage makes the page at va resident and pins its frame. The caller must
// unpin it.
func (as *AddressSpace) pinPage(va hostarch.Addr) (hostarch.PhysAddr, error) {
	for {
		as.mu.Lock()
		p, ok := as.pages[va]
		if !ok {
			as.mu.Unlock()
			return 0, linuxerr.EFAULT
		}
		if !p.present {
			as.mu.Unlock()
			return as.faultIn(va)
		}
		pa := p.pa
		as.mu.Unlock()
		// The frame may be evicted between the unlock and the pin; Pin
		// then fails and the page is looked up again.
		if as.frames.Pin(pa, as, va) {
			return pa, nil
		}
	}
}

// faultIn allocates a pinned frame for the non-resident page at va and fills
// it from swap, or with zeroes if the page was never swapped out.
func (as *AddressSpace) faultIn(va hostarch.Addr) (hostarch.PhysAddr, error) {
	pa, err := as.frames.Allocate(as, va, frame.AllocOpts{User: true, Pinned: true})
	if err != nil {
		return 0, err
	}
	as.mu.Lock()
	p, ok := as.pages[va]
	if !ok {
		as.mu.Unlock()
		as.frames.Free(pa)
		return 0, linuxerr.EFAULT
	}
	if p.swapped {
		if err := as.store.Read(p.slot, as.mem.Bytes(pa)); err != nil {
			as.mu.Unlock()
			as.frames.Free(pa)
			return 0, err
		}
		as.store.Free(p.slot)
		p.swapped = false
		// The swap copy is gone, so the frame is the only copy.
		p.dirty = true
	}
	p.present = true
	p.pa = pa
	as.mu.Unlock()
	return pa, nil
}

// copyPages moves data between user memory at addr and buf, page by page, with
// each page pinned while it is accessed.
func (as *AddressSpace) copyPages(addr hostarch.Addr, buf []byte, out bool) (int, error) {
	if err := as.CheckRange(addr, uint64(len(buf))); err != nil {
		return 0, err
	}
	done := 0
	for done < len(buf) {
		cur := addr + hostarch.Addr(done)
		off := int(cur.PageOffset())
		n := min(hostarch.PageSize-off, len(buf)-done)
		va := cur.RoundDown()
		pa, err := as.pinPage(va)
		if err != nil {
			return done, err
		}
		page := as.mem.Bytes(pa)
		if out {
			copy(page[off:off+n], buf[done:done+n])
			as.mu.Lock()
			if p, ok := as.pages[va]; ok {
				p.dirty = true
			}
			as.mu.Unlock()
		} else {
			copy(buf[done:done+n], page[off:off+n])
		}
		as.frames.Unpin(pa)
		done += n
	}
	return done, nil
}

// CopyIn implements usermem.IO.CopyIn.
func (as *AddressSpace) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	return as.copyPages(addr, dst, false)
}

// CopyOut implements usermem.IO.CopyOut.
func (as *AddressSpace) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	return as.copyPages(addr, src, true)
}

// ReadWord validates the word at addr, which may straddle two pages, and
// returns it.
func (as *AddressSpace) ReadWord(addr hostarch.Addr) (uint32, error) {
	return usermem.CopyInWord(as, addr)
}

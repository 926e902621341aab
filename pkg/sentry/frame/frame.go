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

// Package frame implements the frame table: the global registry of physical
// frames assigned to user pages, and the clock policy that reclaims one when
// the user pool runs dry.
//
// Lock ordering:
//
//	Table.mu
//	  owner locks (e.g. mm.AddressSpace.mu), taken by Owner.Evict
//	    swap store locks
//
// The filesystem lock is never held together with Table.mu.
package frame

import (
	"fmt"
	"time"

	"github.com/google/btree"
	"golang.org/x/sys/unix"
	"teachos.dev/teachos/pkg/errors"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/metric"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sync"
)

var (
	// ErrPhysicalMemoryExhausted is returned when no frame could be
	// allocated even after eviction. It is fatal to the kernel.
	ErrPhysicalMemoryExhausted = errors.New(unix.ENOMEM, "physical memory exhausted")

	// ErrAllFramesPinned is returned by eviction when every frame in the
	// table is pinned.
	ErrAllFramesPinned = fmt.Errorf("all frames pinned: %w", ErrPhysicalMemoryExhausted)
)

var (
	allocatedFrames = metric.MustCreateNewUint64Metric("/frames/allocated", "Number of frames handed to user pages.")
	evictedFrames   = metric.MustCreateNewUint64Metric("/frames/evicted", "Number of frames reclaimed by eviction.")
	freedFrames     = metric.MustCreateNewUint64Metric("/frames/freed", "Number of frames released by their owner.")
)

// Owner is notified when one of its frames is chosen for eviction.
type Owner interface {
	// Evict must invalidate the mapping of va to pa and save the page's
	// contents if they are dirty. It is called with the frame lock held
	// and must not call back into the Table.
	//
	// If Evict returns an error the frame is not reclaimed.
	Evict(va hostarch.Addr, pa hostarch.PhysAddr) error
}

// PageAllocator is the physical page allocator the table draws from.
type PageAllocator interface {
	Allocate(p pgalloc.Pool) (hostarch.PhysAddr, error)
	Free(pa hostarch.PhysAddr)
}

// Entry describes one allocated frame.
type Entry struct {
	// PhysAddr is the address of the frame. It is the table key.
	PhysAddr hostarch.PhysAddr

	// VirtAddr is the user page the frame backs.
	VirtAddr hostarch.Addr

	// Owner is the address space VirtAddr belongs to. The table does not
	// own it.
	Owner Owner

	// Pinned frames are never chosen for eviction.
	Pinned bool
}

func entryLess(a, b *Entry) bool {
	return a.PhysAddr < b.PhysAddr
}

// AllocOpts are options for Table.Allocate.
type AllocOpts struct {
	// User must be set: the table only manages the user pool.
	User bool

	// Pinned returns the frame pinned. The caller must Unpin it.
	Pinned bool
}

// Stats are cumulative frame table counters.
type Stats struct {
	Allocated uint64
	Evicted   uint64
	Freed     uint64
}

// Table is the frame table.
type Table struct {
	pool PageAllocator

	// evictLog throttles eviction warnings, which occur continuously under
	// memory pressure.
	evictLog log.Logger

	// mu is the frame lock. It protects the fields below.
	mu      sync.Mutex
	entries *btree.BTreeG[*Entry]

	// cursor is the physical address the next eviction scan starts at.
	// If cursorValid is false the scan starts at the first entry.
	cursor      hostarch.PhysAddr
	cursorValid bool

	stats Stats
}

// NewTable returns an empty frame table drawing from pool.
func NewTable(pool PageAllocator) *Table {
	return &Table{
		pool:     pool,
		evictLog: log.BasicRateLimitedLogger(time.Second),
		entries:  btree.NewG[*Entry](2, entryLess),
	}
}

// Allocate assigns a frame from the user pool to page va of owner. If the
// pool is exhausted one frame is evicted and the allocation retried once.
func (t *Table) Allocate(owner Owner, va hostarch.Addr, opts AllocOpts) (hostarch.PhysAddr, error) {
	if !opts.User {
		return 0, linuxerr.EINVAL
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	pa, err := t.pool.Allocate(pgalloc.UserPool)
	if err != nil {
		if err := t.evictLocked(); err != nil {
			return 0, err
		}
		if pa, err = t.pool.Allocate(pgalloc.UserPool); err != nil {
			return 0, ErrPhysicalMemoryExhausted
		}
	}
	t.entries.ReplaceOrInsert(&Entry{
		PhysAddr: pa,
		VirtAddr: va,
		Owner:    owner,
		Pinned:   opts.Pinned,
	})
	t.stats.Allocated++
	allocatedFrames.Increment()
	return pa, nil
}

// victimLocked returns the first unpinned entry at or after the cursor,
// wrapping around once.
//
// Preconditions: t.mu must be locked.
func (t *Table) victimLocked() *Entry {
	var victim *Entry
	pick := func(e *Entry) bool {
		if e.Pinned {
			return true
		}
		victim = e
		return false
	}
	if !t.cursorValid {
		t.entries.Ascend(pick)
		return victim
	}
	t.entries.AscendGreaterOrEqual(&Entry{PhysAddr: t.cursor}, pick)
	if victim == nil {
		t.entries.AscendLessThan(&Entry{PhysAddr: t.cursor}, pick)
	}
	return victim
}

// advanceCursorLocked moves the cursor to the entry after e, or to the
// start of the table if e is the last entry.
//
// Preconditions: t.mu must be locked.
func (t *Table) advanceCursorLocked(e *Entry) {
	t.cursorValid = false
	t.entries.AscendGreaterOrEqual(&Entry{PhysAddr: e.PhysAddr + 1}, func(next *Entry) bool {
		t.cursor = next.PhysAddr
		t.cursorValid = true
		return false
	})
}

// evictLocked reclaims exactly one unpinned frame, chosen by a clock scan
// from the cursor.
//
// Preconditions: t.mu must be locked.
func (t *Table) evictLocked() error {
	victim := t.victimLocked()
	if victim == nil {
		log.Warningf("Eviction failed: all %d frames are pinned", t.entries.Len())
		return ErrAllFramesPinned
	}
	t.advanceCursorLocked(victim)

	if err := victim.Owner.Evict(victim.VirtAddr, victim.PhysAddr); err != nil {
		log.Warningf("Evicting frame %v (page %v): %v", victim.PhysAddr, victim.VirtAddr, err)
		return fmt.Errorf("%w: evicting %v: %v", ErrPhysicalMemoryExhausted, victim.PhysAddr, err)
	}
	t.entries.Delete(victim)
	t.pool.Free(victim.PhysAddr)
	t.stats.Evicted++
	evictedFrames.Increment()
	t.evictLog.Infof("Evicted frame %v backing page %v", victim.PhysAddr, victim.VirtAddr)
	return nil
}

// removeLocked deletes e and returns its frame to the pool. If the cursor
// referred to e it is reset to the first entry.
//
// Preconditions: t.mu must be locked. e must be in the table.
func (t *Table) removeLocked(e *Entry) {
	t.entries.Delete(e)
	if t.cursorValid && t.cursor == e.PhysAddr {
		t.cursorValid = false
	}
	t.pool.Free(e.PhysAddr)
	t.stats.Freed++
	freedFrames.Increment()
}

// Free releases the frame at pa. Freeing a frame that is not in the table is
// a caller error.
func (t *Table) Free(pa hostarch.PhysAddr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries.Get(&Entry{PhysAddr: pa})
	if !ok {
		log.Warningf("Freeing frame %v which is not in the frame table", pa)
		return fmt.Errorf("frame %v not in table: %w", pa, linuxerr.EINVAL)
	}
	t.removeLocked(e)
	return nil
}

// ReleaseOwner frees every frame belonging to owner and returns how many
// were released.
func (t *Table) ReleaseOwner(owner Owner) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var owned []*Entry
	t.entries.Ascend(func(e *Entry) bool {
		if e.Owner == owner {
			owned = append(owned, e)
		}
		return true
	})
	for _, e := range owned {
		t.removeLocked(e)
	}
	return len(owned)
}

// Pin marks the frame at pa pinned, provided it still backs page va of
// owner. It returns false if the frame has since been evicted or reused.
func (t *Table) Pin(pa hostarch.PhysAddr, owner Owner, va hostarch.Addr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries.Get(&Entry{PhysAddr: pa})
	if !ok || e.Owner != owner || e.VirtAddr != va {
		return false
	}
	e.Pinned = true
	return true
}

// Unpin makes the frame at pa eligible for eviction again.
func (t *Table) Unpin(pa hostarch.PhysAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries.Get(&Entry{PhysAddr: pa})
	if !ok {
		panic(fmt.Sprintf("unpinning frame %v which is not in the frame table", pa))
	}
	e.Pinned = false
}

// Len returns the number of frames in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Len()
}

// Lookup returns a copy of the entry for pa.
func (t *Table) Lookup(pa hostarch.PhysAddr) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries.Get(&Entry{PhysAddr: pa})
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ForEach calls fn with a copy of every entry in physical address order. fn
// must not call into the Table.
func (t *Table) ForEach(fn func(e Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Ascend(func(e *Entry) bool {
		fn(*e)
		return true
	})
}

// Cursor returns the physical address the next eviction scan starts at. ok
// is false if the scan starts at the first entry.
func (t *Table) Cursor() (pa hostarch.PhysAddr, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor, t.cursorValid
}

// Stats returns the table's counters.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

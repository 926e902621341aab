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

// Package swap provides backing stores for evicted user pages.
//
// A store holds page-sized slots. Writing a page claims the lowest free slot;
// reading it back copies the data out and the caller frees the slot when it no
// longer needs it.
package swap

import (
	"fmt"

	"teachos.dev/teachos/pkg/bitmap"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sync"
)

// Slot identifies a page-sized slot in a Store.
type Slot uint32

// Store is a page-granular backing store.
type Store interface {
	// Write copies one page from src into a newly claimed slot. It fails
	// with ENOSPC when every slot is in use.
	Write(src []byte) (Slot, error)

	// Read copies the page held in slot into dst.
	Read(slot Slot, dst []byte) error

	// Free releases slot. Freeing a slot that is not in use panics.
	Free(slot Slot)

	// Used returns the number of slots in use.
	Used() uint32

	// Close releases resources held by the store.
	Close() error
}

// slots tracks slot usage for a store.
type slots struct {
	mu   sync.Mutex
	used bitmap.Bitmap
}

func (s *slots) claim() (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.used.Claim()
	if !ok {
		return 0, linuxerr.ENOSPC
	}
	return Slot(idx), nil
}

func (s *slots) check(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.used.IsSet(uint32(slot)) {
		panic(fmt.Sprintf("swap slot %d is not in use", slot))
	}
}

func (s *slots) release(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.used.IsSet(uint32(slot)) {
		panic(fmt.Sprintf("freeing swap slot %d which is not in use", slot))
	}
	s.used.Remove(uint32(slot))
}

func (s *slots) count() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used.GetNumOnes()
}

func checkPage(b []byte) {
	if len(b) != hostarch.PageSize {
		panic(fmt.Sprintf("swap I/O of %d bytes, want %d", len(b), hostarch.PageSize))
	}
}

// MemoryStore keeps swapped pages in host memory.
type MemoryStore struct {
	slots
	data []byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore with n slots.
func NewMemoryStore(n uint32) *MemoryStore {
	return &MemoryStore{
		slots: slots{used: bitmap.New(n)},
		data:  make([]byte, uint64(n)*hostarch.PageSize),
	}
}

func (m *MemoryStore) page(slot Slot) []byte {
	off := uint64(slot) * hostarch.PageSize
	return m.data[off : off+hostarch.PageSize]
}

// Write implements Store.Write.
func (m *MemoryStore) Write(src []byte) (Slot, error) {
	checkPage(src)
	slot, err := m.claim()
	if err != nil {
		return 0, err
	}
	copy(m.page(slot), src)
	return slot, nil
}

// Read implements Store.Read.
func (m *MemoryStore) Read(slot Slot, dst []byte) error {
	checkPage(dst)
	m.check(slot)
	copy(dst, m.page(slot))
	return nil
}

// Free implements Store.Free.
func (m *MemoryStore) Free(slot Slot) {
	m.release(slot)
}

// Used implements Store.Used.
func (m *MemoryStore) Used() uint32 {
	return m.count()
}

// Close implements Store.Close.
func (m *MemoryStore) Close() error {
	return nil
}

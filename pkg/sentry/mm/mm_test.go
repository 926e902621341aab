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
	"bytes"
	"errors"
	"testing"

	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/sentry/frame"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sentry/swap"
)

const base = hostarch.Addr(teachos.ImageBase)

func pageAddr(i int) hostarch.Addr {
	return base + hostarch.Addr(i*hostarch.PageSize)
}

func newTestAS(t *testing.T, frames uint32, store swap.Store) (*AddressSpace, *frame.Table) {
	t.Helper()
	mem := pgalloc.New(1, frames)
	ft := frame.NewTable(mem)
	return NewAddressSpace(ft, mem, store), ft
}

func mapPages(t *testing.T, as *AddressSpace, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := as.MapPage(pageAddr(i)); err != nil {
			t.Fatalf("as.MapPage(%v): got %v, wanted nil", pageAddr(i), err)
		}
	}
}

func TestCheckAddr(t *testing.T) {
	as, _ := newTestAS(t, 4, nil)
	mapPages(t, as, 1)
	for _, test := range []struct {
		addr hostarch.Addr
		want error
	}{
		{base, nil},
		{base + hostarch.PageSize - 1, nil},
		{base - 1, linuxerr.EFAULT},
		{0, linuxerr.EFAULT},
		{base + hostarch.PageSize, linuxerr.EFAULT},
		{teachos.PhysBase, linuxerr.EFAULT},
		{teachos.PhysBase - 1, linuxerr.EFAULT},
	} {
		if err := as.CheckAddr(test.addr); err != test.want {
			t.Errorf("as.CheckAddr(%v): got %v, wanted %v", test.addr, err, test.want)
		}
	}
}

func TestCheckRange(t *testing.T) {
	as, _ := newTestAS(t, 4, nil)
	mapPages(t, as, 2)
	for _, test := range []struct {
		addr   hostarch.Addr
		length uint64
		want   error
	}{
		{base, 2 * hostarch.PageSize, nil},
		{base + 10, 0, nil},
		{base + hostarch.PageSize - 2, 4, nil},
		{base + 2*hostarch.PageSize - 2, 4, linuxerr.EFAULT},
		{base, 2*hostarch.PageSize + 1, linuxerr.EFAULT},
		{teachos.PhysBase - 4, 8, linuxerr.EFAULT},
		{^hostarch.Addr(0) - 2, 8, linuxerr.EFAULT},
	} {
		if err := as.CheckRange(test.addr, test.length); err != test.want {
			t.Errorf("as.CheckRange(%v, %d): got %v, wanted %v", test.addr, test.length, err, test.want)
		}
	}
}

func TestCopyOutValidatesWholeRange(t *testing.T) {
	as, _ := newTestAS(t, 4, nil)
	mapPages(t, as, 1)
	src := bytes.Repeat([]byte{0x5a}, 8)
	n, err := as.CopyOut(base+hostarch.PageSize-4, src)
	if err != linuxerr.EFAULT || n != 0 {
		t.Fatalf("as.CopyOut across into an unmapped page = %d, %v, wanted 0, EFAULT", n, err)
	}
	got := make([]byte, 4)
	if _, err := as.CopyIn(base+hostarch.PageSize-4, got); err != nil {
		t.Fatalf("as.CopyIn: %v", err)
	}
	if !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("failed CopyOut wrote % x into the mapped page", got)
	}
}

func TestReadWordStraddlingPages(t *testing.T) {
	as, _ := newTestAS(t, 4, nil)
	mapPages(t, as, 1)
	if _, err := as.ReadWord(base + hostarch.PageSize - 2); err != linuxerr.EFAULT {
		t.Errorf("as.ReadWord with its tail unmapped: got %v, wanted EFAULT", err)
	}
	if err := as.MapPage(pageAddr(1)); err != nil {
		t.Fatalf("as.MapPage: %v", err)
	}
	if _, err := as.CopyOut(base+hostarch.PageSize-2, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("as.CopyOut: %v", err)
	}
	v, err := as.ReadWord(base + hostarch.PageSize - 2)
	if err != nil || v != 0x04030201 {
		t.Errorf("as.ReadWord = %#x, %v, wanted 0x4030201, nil", v, err)
	}
}

func TestSwapRoundTrip(t *testing.T) {
	const pages = 4
	store := swap.NewMemoryStore(pages)
	as, ft := newTestAS(t, 2, store)
	mapPages(t, as, pages)

	for i := 0; i < pages; i++ {
		data := bytes.Repeat([]byte{byte(0x10 + i)}, hostarch.PageSize)
		if n, err := as.CopyOut(pageAddr(i), data); err != nil || n != len(data) {
			t.Fatalf("as.CopyOut(page %d) = %d, %v", i, n, err)
		}
	}
	if u := as.Usage(); u.Resident > 2 || u.Swapped == 0 || u.Mapped != pages {
		t.Errorf("as.Usage() = %+v, wanted at most 2 resident and some swapped", u)
	}
	for i := 0; i < pages; i++ {
		got := make([]byte, hostarch.PageSize)
		if _, err := as.CopyIn(pageAddr(i), got); err != nil {
			t.Fatalf("as.CopyIn(page %d): %v", i, err)
		}
		if want := bytes.Repeat([]byte{byte(0x10 + i)}, hostarch.PageSize); !bytes.Equal(got, want) {
			t.Errorf("page %d came back from swap with the wrong contents", i)
		}
	}
	if ft.Len() != 2 {
		t.Errorf("ft.Len() = %d, wanted 2", ft.Len())
	}
	if ft.Stats().Evicted == 0 {
		t.Errorf("no frames were evicted")
	}

	as.Release()
	if ft.Len() != 0 {
		t.Errorf("ft.Len() after Release = %d, wanted 0", ft.Len())
	}
	if store.Used() != 0 {
		t.Errorf("store.Used() after Release = %d, wanted 0", store.Used())
	}
}

func TestCleanPagesAreDiscarded(t *testing.T) {
	store := swap.NewMemoryStore(1)
	as, _ := newTestAS(t, 1, store)
	mapPages(t, as, 2)
	if store.Used() != 0 {
		t.Errorf("evicting a clean page used %d swap slots", store.Used())
	}
	got := make([]byte, 16)
	if _, err := as.CopyIn(base, got); err != nil {
		t.Fatalf("as.CopyIn: %v", err)
	}
	if !bytes.Equal(got, make([]byte, 16)) {
		t.Errorf("discarded page did not come back zeroed: % x", got)
	}
}

func TestDirtyEvictionWithoutSwap(t *testing.T) {
	as, _ := newTestAS(t, 1, nil)
	mapPages(t, as, 1)
	if _, err := as.CopyOut(base, []byte("dirty")); err != nil {
		t.Fatalf("as.CopyOut: %v", err)
	}
	if err := as.MapPage(pageAddr(1)); !errors.Is(err, frame.ErrPhysicalMemoryExhausted) {
		t.Errorf("as.MapPage with nowhere to evict to: got %v, wanted %v", err, frame.ErrPhysicalMemoryExhausted)
	}
	if err := as.CheckAddr(pageAddr(1)); err != linuxerr.EFAULT {
		t.Errorf("failed MapPage left the page mapped: CheckAddr = %v", err)
	}
}

func TestMapPageErrors(t *testing.T) {
	as, _ := newTestAS(t, 2, nil)
	if err := as.MapPage(base + 1); err != linuxerr.EINVAL {
		t.Errorf("as.MapPage(unaligned): got %v, wanted EINVAL", err)
	}
	if err := as.MapPage(teachos.PhysBase); err != linuxerr.EINVAL {
		t.Errorf("as.MapPage(PhysBase): got %v, wanted EINVAL", err)
	}
	mapPages(t, as, 1)
	if err := as.MapPage(base); err != linuxerr.EEXIST {
		t.Errorf("as.MapPage twice: got %v, wanted EEXIST", err)
	}
	as.Release()
	if err := as.MapPage(pageAddr(3)); err != linuxerr.ESRCH {
		t.Errorf("as.MapPage after Release: got %v, wanted ESRCH", err)
	}
}

func TestTwoAddressSpacesShareFrames(t *testing.T) {
	store := swap.NewMemoryStore(8)
	mem := pgalloc.New(0, 2)
	ft := frame.NewTable(mem)
	a := NewAddressSpace(ft, mem, store)
	b := NewAddressSpace(ft, mem, store)
	if err := a.MapPage(base); err != nil {
		t.Fatalf("a.MapPage: %v", err)
	}
	if _, err := a.CopyOut(base, []byte("from a")); err != nil {
		t.Fatalf("a.CopyOut: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.MapPage(pageAddr(i)); err != nil {
			t.Fatalf("b.MapPage(%d): %v", i, err)
		}
		if _, err := b.CopyOut(pageAddr(i), []byte("from b")); err != nil {
			t.Fatalf("b.CopyOut(%d): %v", i, err)
		}
	}
	got := make([]byte, 6)
	if _, err := a.CopyIn(base, got); err != nil || string(got) != "from a" {
		t.Errorf("a.CopyIn = %q, %v, wanted \"from a\", nil", got, err)
	}
}

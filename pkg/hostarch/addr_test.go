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

package hostarch

import "testing"

func TestRounding(t *testing.T) {
	for _, test := range []struct {
		addr      Addr
		down      Addr
		up        Addr
		offset    uint64
		isAligned bool
	}{
		{0, 0, 0, 0, true},
		{1, 0, PageSize, 1, false},
		{PageSize - 1, 0, PageSize, PageSize - 1, false},
		{PageSize, PageSize, PageSize, 0, true},
		{0x08048123, 0x08048000, 0x08049000, 0x123, false},
	} {
		if got := test.addr.RoundDown(); got != test.down {
			t.Errorf("%v.RoundDown() = %v, want %v", test.addr, got, test.down)
		}
		if got, ok := test.addr.RoundUp(); !ok || got != test.up {
			t.Errorf("%v.RoundUp() = %v, %t, want %v, true", test.addr, got, ok, test.up)
		}
		if got := test.addr.PageOffset(); got != test.offset {
			t.Errorf("%v.PageOffset() = %d, want %d", test.addr, got, test.offset)
		}
		if got := test.addr.IsPageAligned(); got != test.isAligned {
			t.Errorf("%v.IsPageAligned() = %t, want %t", test.addr, got, test.isAligned)
		}
	}
}

func TestRoundUpOverflow(t *testing.T) {
	if _, ok := (^Addr(0)).RoundUp(); ok {
		t.Errorf("RoundUp of the last address succeeded, want overflow")
	}
}

func TestAddLength(t *testing.T) {
	if end, ok := Addr(0x1000).AddLength(0x10); !ok || end != 0x1010 {
		t.Errorf("AddLength = %v, %t, want 0x1010, true", end, ok)
	}
	if _, ok := (^Addr(0)).AddLength(2); ok {
		t.Errorf("AddLength past the end of the address space succeeded")
	}
}

func TestAddrRange(t *testing.T) {
	ar, ok := Addr(0x2000).ToRange(0x1000)
	if !ok {
		t.Fatalf("ToRange failed")
	}
	if !ar.WellFormed() {
		t.Errorf("%v is not well formed", ar)
	}
	if ar.Length() != 0x1000 {
		t.Errorf("%v.Length() = %v, want 0x1000", ar, ar.Length())
	}
	if !ar.Contains(0x2fff) || ar.Contains(0x3000) || ar.Contains(0x1fff) {
		t.Errorf("%v.Contains gave wrong answers at the edges", ar)
	}
}

func TestPhysAddr(t *testing.T) {
	p := PhysAddr(3 * PageSize)
	if !p.IsPageAligned() {
		t.Errorf("%v is not page aligned", p)
	}
	if got := p.FrameNumber(); got != 3 {
		t.Errorf("%v.FrameNumber() = %d, want 3", p, got)
	}
	if (p + 1).IsPageAligned() {
		t.Errorf("%v is page aligned", p+1)
	}
}

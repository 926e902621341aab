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

package usermem

import (
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
)

// BytesIO implements IO using a byte slice mapped at Base. Addresses outside
// [Base, Base+len(Bytes)) fault.
type BytesIO struct {
	Base  hostarch.Addr
	Bytes []byte
}

var _ IO = (*BytesIO)(nil)

// rangeCheck returns the offset of addr and the number of bytes of length
// that lie inside the slice.
func (b *BytesIO) rangeCheck(addr hostarch.Addr, length int) (int, int) {
	if addr < b.Base || uint64(addr-b.Base) >= uint64(len(b.Bytes)) {
		return 0, 0
	}
	off := int(addr - b.Base)
	if rem := len(b.Bytes) - off; length > rem {
		return off, rem
	}
	return off, length
}

// CopyOut implements IO.CopyOut.
func (b *BytesIO) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	off, n := b.rangeCheck(addr, len(src))
	if n < len(src) {
		return 0, linuxerr.EFAULT
	}
	return copy(b.Bytes[off:], src), nil
}

// CopyIn implements IO.CopyIn.
func (b *BytesIO) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	off, n := b.rangeCheck(addr, len(dst))
	if n < len(dst) {
		return 0, linuxerr.EFAULT
	}
	return copy(dst, b.Bytes[off:off+n]), nil
}

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

// Package bitmap provides a fixed-size bitmap used to track free pages and
// swap slots.
package bitmap

import (
	"fmt"
	"math/bits"
)

// Bitmap is a fixed-size set of bits. The zero value is an empty bitmap of
// size zero.
type Bitmap struct {
	// numOnes is the number of set bits.
	numOnes uint32

	// size is the number of usable bits. Bits at or above size in the last
	// block are always zero.
	size uint32

	// bitBlock holds the bits, 64 per word.
	bitBlock []uint64
}

// New creates a bitmap with size clear bits.
func New(size uint32) Bitmap {
	return Bitmap{
		size:     size,
		bitBlock: make([]uint64, (size+63)/64),
	}
}

// Size returns the number of bits in the bitmap.
func (b *Bitmap) Size() uint32 {
	return b.size
}

// GetNumOnes returns the number of set bits.
func (b *Bitmap) GetNumOnes() uint32 {
	return b.numOnes
}

// IsFull returns true if every bit is set.
func (b *Bitmap) IsFull() bool {
	return b.numOnes == b.size
}

// IsSet returns true if bit i is set.
func (b *Bitmap) IsSet(i uint32) bool {
	if i >= b.size {
		return false
	}
	return b.bitBlock[i/64]&(uint64(1)<<(i%64)) != 0
}

// FirstZero returns the first unset bit in [start, Size()).
func (b *Bitmap) FirstZero(start uint32) (uint32, error) {
	if start >= b.size {
		return 0, fmt.Errorf("start %d is outside a bitmap of size %d", start, b.size)
	}
	i, nbit := int(start/64), start%64
	w := b.bitBlock[i] | ((1 << nbit) - 1)
	for {
		if w != ^uint64(0) {
			r := uint32(bits.TrailingZeros64(^w)) + uint32(i)*64
			if r >= b.size {
				break
			}
			return r, nil
		}
		i++
		if i == len(b.bitBlock) {
			break
		}
		w = b.bitBlock[i]
	}
	return 0, fmt.Errorf("bitmap has no unset bits")
}

// Add sets bit i. It panics if i is out of range.
func (b *Bitmap) Add(i uint32) {
	if i >= b.size {
		panic(fmt.Sprintf("bit %d out of range for bitmap of size %d", i, b.size))
	}
	blockNum, mask := i/64, uint64(1)<<(i%64)
	if b.bitBlock[blockNum]&mask == 0 {
		b.bitBlock[blockNum] |= mask
		b.numOnes++
	}
}

// Remove clears bit i. It panics if i is out of range.
func (b *Bitmap) Remove(i uint32) {
	if i >= b.size {
		panic(fmt.Sprintf("bit %d out of range for bitmap of size %d", i, b.size))
	}
	blockNum, mask := i/64, uint64(1)<<(i%64)
	if b.bitBlock[blockNum]&mask != 0 {
		b.bitBlock[blockNum] &^= mask
		b.numOnes--
	}
}

// Claim finds the lowest clear bit, sets it and returns it. ok is false if
// the bitmap is full.
func (b *Bitmap) Claim() (bit uint32, ok bool) {
	if b.size == 0 {
		return 0, false
	}
	bit, err := b.FirstZero(0)
	if err != nil {
		return 0, false
	}
	b.Add(bit)
	return bit, true
}

// ToSlice returns the set bits in increasing order. For example, a bitmap of
// [0, 1, 0, 1] yields [1, 3].
func (b *Bitmap) ToSlice() []uint32 {
	out := make([]uint32, 0, b.numOnes)
	base := uint32(0)
	for _, block := range b.bitBlock {
		for block != 0 {
			j := block & -block
			out = append(out, base+uint32(bits.OnesCount64(j-1)))
			block ^= j
		}
		base += 64
	}
	return out
}

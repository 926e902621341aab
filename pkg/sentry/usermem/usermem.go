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

// Package usermem governs access to user memory.
package usermem

import (
	"teachos.dev/teachos/pkg/abi/teachos"
	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/hostarch"
)

// IO provides access to the contents of a virtual memory space.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory mapped at addr. It
	// returns the number of bytes copied. If the number of bytes copied is <
	// len(src), it returns a non-nil error explaining why.
	//
	// The whole destination range is validated before any byte is written.
	CopyOut(addr hostarch.Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the memory mapped at addr to dst.
	// It returns the number of bytes copied. If the number of bytes copied is
	// < len(dst), it returns a non-nil error explaining why.
	//
	// The whole source range is validated before any byte is read.
	CopyIn(addr hostarch.Addr, dst []byte) (int, error)
}

// copyStringIncrement is the maximum number of bytes that are copied from
// virtual memory at a time by CopyStringIn.
const copyStringIncrement = 64

// CopyStringIn copies a NUL-terminated string of unknown length from the
// memory mapped at addr in uio and returns it as a string (not including the
// trailing NUL). If the length of the string, including the terminating NUL,
// would exceed maxlen, CopyStringIn returns the string truncated to maxlen and
// ENAMETOOLONG.
//
// Reads never cross a page boundary, so a string that ends just before an
// unmapped page is copied without touching that page.
func CopyStringIn(uio IO, addr hostarch.Addr, maxlen int) (string, error) {
	initLen := maxlen
	if initLen > copyStringIncrement {
		initLen = copyStringIncrement
	}
	buf := make([]byte, initLen)
	var done int
	for done < maxlen {
		start, ok := addr.AddLength(uint64(done))
		if !ok {
			return string(buf[:done]), linuxerr.EFAULT
		}
		readlen := copyStringIncrement
		if readlen > maxlen-done {
			readlen = maxlen - done
		}
		end, ok := start.AddLength(uint64(readlen))
		if !ok {
			return string(buf[:done]), linuxerr.EFAULT
		}
		if start.RoundDown() != end.RoundDown() {
			end = end.RoundDown()
		}
		if need := done + int(end-start); need > len(buf) {
			newBufLen := 2 * len(buf)
			if newBufLen > maxlen {
				newBufLen = maxlen
			}
			buf = append(buf, make([]byte, newBufLen-len(buf))...)
		}
		n, err := uio.CopyIn(start, buf[done:done+int(end-start)])
		// The terminating NUL may precede the fault.
		for i, c := range buf[done : done+n] {
			if c == 0 {
				return string(buf[:done+i]), nil
			}
		}
		done += n
		if err != nil {
			return string(buf[:done]), err
		}
	}
	return string(buf[:done]), linuxerr.ENAMETOOLONG
}

// CopyInWord copies a machine word from the memory mapped at addr.
func CopyInWord(uio IO, addr hostarch.Addr) (uint32, error) {
	var b [teachos.WordSize]byte
	if _, err := uio.CopyIn(addr, b[:]); err != nil {
		return 0, err
	}
	return hostarch.ByteOrder.Uint32(b[:]), nil
}

// CopyOutWord copies the machine word v to the memory mapped at addr.
func CopyOutWord(uio IO, addr hostarch.Addr, v uint32) error {
	var b [teachos.WordSize]byte
	hostarch.ByteOrder.PutUint32(b[:], v)
	_, err := uio.CopyOut(addr, b[:])
	return err
}

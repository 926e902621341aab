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

package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestErrorFromUnix(t *testing.T) {
	for _, e := range []unix.Errno{unix.ENOENT, unix.EFAULT, unix.EBADF, unix.ENOSYS} {
		got := ErrorFromUnix(e)
		if got.Errno() != e {
			t.Errorf("ErrorFromUnix(%v).Errno() = %v, want %v", e, got.Errno(), e)
		}
	}
	if got := ErrorFromUnix(unix.EXDEV); got != EIO {
		t.Errorf("ErrorFromUnix(EXDEV) = %v, want EIO", got)
	}
}

func TestEqualsWrapped(t *testing.T) {
	wrapped := fmt.Errorf("copying path: %w", EFAULT)
	if !Equals(EFAULT, wrapped) {
		t.Errorf("Equals(EFAULT, %v) = false, want true", wrapped)
	}
	if Equals(EBADF, wrapped) {
		t.Errorf("Equals(EBADF, %v) = true, want false", wrapped)
	}
	if !Equals(nil, nil) {
		t.Errorf("Equals(nil, nil) = false, want true")
	}
}

func TestToUnix(t *testing.T) {
	if errno, ok := ToUnix(fmt.Errorf("open: %w", ENOENT)); !ok || errno != unix.ENOENT {
		t.Errorf("ToUnix = %v, %t, want ENOENT, true", errno, ok)
	}
	if _, ok := ToUnix(fmt.Errorf("plain")); ok {
		t.Errorf("ToUnix of a plain error succeeded")
	}
}

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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
	"teachos.dev/teachos/pkg/errors"
)

// The errors below are the only errno values the kernel produces. Comparing
// against them is done by identity (or errors.Is for wrapped errors); the
// Errno method recovers the number.
var (
	ENOENT       = errors.New(unix.ENOENT, "no such file or directory")
	ESRCH        = errors.New(unix.ESRCH, "no such process")
	EIO          = errors.New(unix.EIO, "I/O error")
	E2BIG        = errors.New(unix.E2BIG, "argument list too long")
	ENOEXEC      = errors.New(unix.ENOEXEC, "exec format error")
	EBADF        = errors.New(unix.EBADF, "bad file number")
	ECHILD       = errors.New(unix.ECHILD, "no child processes")
	ENOMEM       = errors.New(unix.ENOMEM, "out of memory")
	EFAULT       = errors.New(unix.EFAULT, "bad address")
	EEXIST       = errors.New(unix.EEXIST, "file exists")
	EINVAL       = errors.New(unix.EINVAL, "invalid argument")
	ENOSPC       = errors.New(unix.ENOSPC, "no space left on device")
	ENAMETOOLONG = errors.New(unix.ENAMETOOLONG, "file name too long")
	ENOSYS       = errors.New(unix.ENOSYS, "invalid system call number")
)

var errnoToError = map[unix.Errno]*errors.Error{
	unix.ENOENT:       ENOENT,
	unix.ESRCH:        ESRCH,
	unix.EIO:          EIO,
	unix.E2BIG:        E2BIG,
	unix.ENOEXEC:      ENOEXEC,
	unix.EBADF:        EBADF,
	unix.ECHILD:       ECHILD,
	unix.ENOMEM:       ENOMEM,
	unix.EFAULT:       EFAULT,
	unix.EEXIST:       EEXIST,
	unix.EINVAL:       EINVAL,
	unix.ENOSPC:       ENOSPC,
	unix.ENAMETOOLONG: ENAMETOOLONG,
	unix.ENOSYS:       ENOSYS,
}

// ErrorFromUnix returns the *errors.Error for the given errno, or EIO if the
// kernel never produces that errno.
func ErrorFromUnix(err unix.Errno) *errors.Error {
	if e, ok := errnoToError[err]; ok {
		return e
	}
	return EIO
}

// ToUnix converts err to a unix.Errno. ok is false if no *errors.Error is
// found in err's chain.
func ToUnix(err error) (errno unix.Errno, ok bool) {
	var e *errors.Error
	if !goerrors.As(err, &e) {
		return 0, false
	}
	return e.Errno(), true
}

// Equals checks if a linuxerr error and some other error are equal. err may
// wrap e.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == nil
	}
	return goerrors.Is(err, e)
}

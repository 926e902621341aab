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

// Package memfs provides an in-memory implementation of fs.Filesystem.
package memfs

import (
	"sort"

	"teachos.dev/teachos/pkg/errors/linuxerr"
	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/sentry/fs"
)

// inode holds the contents of one file.
type inode struct {
	name string
	data []byte

	// openCount is the number of open handles.
	openCount int

	// denyWrite is the number of handles that called DenyWrite.
	denyWrite int

	// unlinked is set once the file has been removed from the directory.
	unlinked bool
}

// Filesystem is an in-memory flat filesystem.
//
// It is not safe for concurrent use; see package fs.
type Filesystem struct {
	files map[string]*inode

	// live counts inodes that are linked or still open.
	live int

	// capacity is the total number of bytes file contents may occupy.
	capacity int64

	// used is the number of bytes held by live inodes.
	used int64
}

var _ fs.Filesystem = (*Filesystem)(nil)

// New returns an empty filesystem whose files may hold at most capacity
// bytes in total.
func New(capacity int64) *Filesystem {
	return &Filesystem{files: make(map[string]*inode), capacity: capacity}
}

func checkName(name string) error {
	switch {
	case name == "":
		return linuxerr.ENOENT
	case len(name) > fs.NameMax:
		return linuxerr.ENAMETOOLONG
	}
	return nil
}

// Create implements fs.Filesystem.Create.
func (mfs *Filesystem) Create(name string, size int64) error {
	if err := checkName(name); err != nil {
		return err
	}
	if size < 0 {
		return linuxerr.EINVAL
	}
	if _, ok := mfs.files[name]; ok {
		return linuxerr.EEXIST
	}
	if size > mfs.capacity-mfs.used {
		return linuxerr.ENOSPC
	}
	mfs.files[name] = &inode{name: name, data: make([]byte, size)}
	mfs.used += size
	mfs.live++
	return nil
}

// WriteFile creates name holding a copy of data.
func (mfs *Filesystem) WriteFile(name string, data []byte) error {
	if err := mfs.Create(name, int64(len(data))); err != nil {
		return err
	}
	copy(mfs.files[name].data, data)
	return nil
}

// Open implements fs.Filesystem.Open.
func (mfs *Filesystem) Open(name string) (fs.File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	ino, ok := mfs.files[name]
	if !ok {
		return nil, linuxerr.ENOENT
	}
	ino.openCount++
	return &file{mfs: mfs, ino: ino}, nil
}

// Remove implements fs.Filesystem.Remove.
func (mfs *Filesystem) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	ino, ok := mfs.files[name]
	if !ok {
		return linuxerr.ENOENT
	}
	delete(mfs.files, name)
	ino.unlinked = true
	if ino.openCount == 0 {
		mfs.reclaim(ino)
	} else {
		log.Debugf("File %q removed with %d open handles; deferring reclaim", name, ino.openCount)
	}
	return nil
}

func (mfs *Filesystem) reclaim(ino *inode) {
	mfs.used -= int64(len(ino.data))
	ino.data = nil
	mfs.live--
}

// Names returns the linked file names in sorted order.
func (mfs *Filesystem) Names() []string {
	names := make([]string, 0, len(mfs.files))
	for name := range mfs.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Live returns the number of files whose storage has not been reclaimed,
// including removed files that are still open.
func (mfs *Filesystem) Live() int {
	return mfs.live
}

// file is an open handle.
type file struct {
	mfs    *Filesystem
	ino    *inode
	pos    int64
	denied bool
	closed bool
}

func (f *file) checkOpen() {
	if f.closed {
		panic("use of closed file " + f.ino.name)
	}
}

// Read implements fs.File.Read.
func (f *file) Read(dst []byte) (int, error) {
	f.checkOpen()
	if f.pos >= int64(len(f.ino.data)) {
		return 0, nil
	}
	n := copy(dst, f.ino.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write implements fs.File.Write.
func (f *file) Write(src []byte) (int, error) {
	f.checkOpen()
	if f.ino.denyWrite > 0 || f.pos >= int64(len(f.ino.data)) {
		return 0, nil
	}
	n := copy(f.ino.data[f.pos:], src)
	f.pos += int64(n)
	return n, nil
}

// Seek implements fs.File.Seek.
func (f *file) Seek(pos int64) {
	f.checkOpen()
	if pos < 0 {
		pos = 0
	}
	f.pos = pos
}

// Tell implements fs.File.Tell.
func (f *file) Tell() int64 {
	f.checkOpen()
	return f.pos
}

// Size implements fs.File.Size.
func (f *file) Size() int64 {
	f.checkOpen()
	return int64(len(f.ino.data))
}

// DenyWrite implements fs.File.DenyWrite.
func (f *file) DenyWrite() {
	f.checkOpen()
	if !f.denied {
		f.denied = true
		f.ino.denyWrite++
	}
}

// AllowWrite implements fs.File.AllowWrite.
func (f *file) AllowWrite() {
	f.checkOpen()
	if f.denied {
		f.denied = false
		f.ino.denyWrite--
	}
}

// Close implements fs.File.Close.
func (f *file) Close() error {
	f.checkOpen()
	f.AllowWrite()
	f.closed = true
	f.ino.openCount--
	if f.ino.openCount == 0 && f.ino.unlinked {
		f.mfs.reclaim(f.ino)
	}
	return nil
}

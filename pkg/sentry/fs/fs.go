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

// Package fs defines the filesystem the kernel consumes: a flat namespace of
// fixed-size files.
//
// Implementations are not required to be safe for concurrent use. The kernel
// serializes every call with its filesystem lock.
package fs

// NameMax is the longest file name a filesystem accepts.
const NameMax = 14

// Filesystem is a flat collection of named files.
type Filesystem interface {
	// Create creates a file of size zeroed bytes. It fails with EEXIST if
	// the name is taken.
	Create(name string, size int64) error

	// Open opens the named file. It fails with ENOENT if there is no such
	// file.
	Open(name string) (File, error)

	// Remove unlinks the named file. Open handles to it remain usable and
	// its storage is reclaimed when the last one is closed.
	Remove(name string) error
}

// File is an open file with its own position.
type File interface {
	// Read reads from the current position and advances it. It returns
	// 0 at or past the end of the file.
	Read(dst []byte) (int, error)

	// Write writes at the current position and advances it. Files do not
	// grow: the write is cut short at the end of the file. A file whose
	// writes are denied accepts no bytes.
	Write(src []byte) (int, error)

	// Seek sets the position. Positions past the end are allowed.
	Seek(pos int64)

	// Tell returns the position.
	Tell() int64

	// Size returns the size of the file in bytes.
	Size() int64

	// DenyWrite prevents writes to the underlying file through any handle
	// until AllowWrite or Close is called on this handle.
	DenyWrite()

	// AllowWrite undoes DenyWrite.
	AllowWrite()

	// Close releases the handle.
	Close() error
}

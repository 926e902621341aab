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

package swap

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"teachos.dev/teachos/pkg/bitmap"
	"teachos.dev/teachos/pkg/hostarch"
	"teachos.dev/teachos/pkg/log"
)

var errLocked = errors.New("swap file is locked by another process")

// FileStoreOpts configures a FileStore.
type FileStoreOpts struct {
	// Path is the swap file. It is created if it does not exist and
	// truncated to Slots pages.
	Path string

	// Slots is the number of page slots.
	Slots uint32

	// LockTimeout bounds how long OpenFileStore waits for another holder of
	// the swap file to release it.
	LockTimeout time.Duration
}

// FileStore keeps swapped pages in a host file. The file is locked for the
// lifetime of the store so that two machines never share a swap file.
type FileStore struct {
	slots
	f    *os.File
	lock *flock.Flock
}

var _ Store = (*FileStore)(nil)

// OpenFileStore creates or reuses the swap file named by opts.
func OpenFileStore(opts FileStoreOpts) (*FileStore, error) {
	lock := flock.New(opts.Path + ".lock")
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = opts.LockTimeout
	if b.MaxElapsedTime <= 0 {
		// A zero MaxElapsedTime retries forever; try exactly once instead.
		b.MaxElapsedTime = time.Nanosecond
	}
	err := backoff.Retry(func() error {
		ok, err := lock.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			log.Debugf("Swap file %q is locked, retrying", opts.Path)
			return errLocked
		}
		return nil
	}, b)
	if err != nil {
		return nil, fmt.Errorf("locking swap file %q: %w", opts.Path, err)
	}

	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening swap file: %w", err)
	}
	if err := f.Truncate(int64(opts.Slots) * hostarch.PageSize); err != nil {
		f.Close()
		lock.Unlock()
		return nil, fmt.Errorf("sizing swap file: %w", err)
	}
	log.Infof("Swap file %q: %d slots", opts.Path, opts.Slots)
	return &FileStore{
		slots: slots{used: bitmap.New(opts.Slots)},
		f:     f,
		lock:  lock,
	}, nil
}

// Write implements Store.Write.
func (fs *FileStore) Write(src []byte) (Slot, error) {
	checkPage(src)
	slot, err := fs.claim()
	if err != nil {
		return 0, err
	}
	if _, err := fs.f.WriteAt(src, int64(slot)*hostarch.PageSize); err != nil {
		fs.release(slot)
		return 0, fmt.Errorf("writing swap slot %d: %w", slot, err)
	}
	return slot, nil
}

// Read implements Store.Read.
func (fs *FileStore) Read(slot Slot, dst []byte) error {
	checkPage(dst)
	fs.check(slot)
	if _, err := fs.f.ReadAt(dst, int64(slot)*hostarch.PageSize); err != nil {
		return fmt.Errorf("reading swap slot %d: %w", slot, err)
	}
	return nil
}

// Free implements Store.Free.
func (fs *FileStore) Free(slot Slot) {
	fs.release(slot)
}

// Used implements Store.Used.
func (fs *FileStore) Used() uint32 {
	return fs.count()
}

// Close implements Store.Close.
func (fs *FileStore) Close() error {
	err := fs.f.Close()
	if uerr := fs.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

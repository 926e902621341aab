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

package cmd

import (
	"fmt"
	"io"
	"os"

	"teachos.dev/teachos/pkg/log"
	"teachos.dev/teachos/pkg/metric"
	"teachos.dev/teachos/pkg/sentry/fs/memfs"
	"teachos.dev/teachos/pkg/sentry/kernel"
	"teachos.dev/teachos/pkg/sentry/pgalloc"
	"teachos.dev/teachos/pkg/sentry/swap"
	"teachos.dev/teachos/pkg/sentry/syscalls/teachos"
	"teachos.dev/teachos/tkrun/config"
	"teachos.dev/teachos/tkrun/programs"
)

// machine is a booted kernel and the resources it holds.
type machine struct {
	k    *kernel.Kernel
	swap swap.Store
}

// boot builds a kernel as configured by conf, with the built-in programs
// installed.
func boot(conf *config.Config, stdin io.Reader, stdout io.Writer) (*machine, error) {
	var store swap.Store
	switch conf.Swap {
	case config.SwapMemory:
		store = swap.NewMemoryStore(uint32(conf.SwapSlots))
	case config.SwapFile:
		fs, err := swap.OpenFileStore(swap.FileStoreOpts{
			Path:        conf.SwapFile,
			Slots:       uint32(conf.SwapSlots),
			LockTimeout: conf.SwapLockTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening swap file: %w", err)
		}
		store = fs
	case config.SwapNone:
	}

	table, ok := kernel.LookupSyscallTable(teachos.Name)
	if !ok {
		return nil, fmt.Errorf("syscall table %q not registered", teachos.Name)
	}
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Filesystem:   memfs.New(int64(conf.FSBytes)),
		Memory:       pgalloc.New(uint32(conf.KernelPages), uint32(conf.UserPages)),
		Swap:         store,
		SyscallTable: table,
		Stdin:        stdin,
		Stdout:       stdout,
		Strace:       conf.Strace,
	}); err != nil {
		return nil, err
	}
	if err := programs.Install(k); err != nil {
		return nil, err
	}
	log.Infof("Booted with %d user frames, %d kernel frames, swap %v", conf.UserPages, conf.KernelPages, conf.Swap)
	return &machine{k: k, swap: store}, nil
}

// shutdown releases the swap area and writes metrics if configured.
func (m *machine) shutdown(conf *config.Config) error {
	if m.swap != nil {
		if err := m.swap.Close(); err != nil {
			return fmt.Errorf("closing swap: %w", err)
		}
	}
	if conf.MetricsFile == "" {
		return nil
	}
	f, err := os.Create(conf.MetricsFile)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	if err := metric.WritePrometheus(f); err != nil {
		f.Close()
		return fmt.Errorf("writing metrics: %w", err)
	}
	return f.Close()
}

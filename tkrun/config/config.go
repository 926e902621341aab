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

// Package config provides basic infrastructure to set configuration settings
// for tkrun. Each setting is a flag that can be set on the command line or in
// a config file. Flags given on the command line take precedence over the
// file.
package config

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/mohae/deepcopy"
	"teachos.dev/teachos/pkg/log"
)

// Config holds configuration that is not part of the machine's programs.
type Config struct {
	// ConfigFile is a TOML or YAML file with default settings.
	ConfigFile string `flag:"config" toml:"-" yaml:"-"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log-format" yaml:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log" toml:"debug-log" yaml:"debug-log"`

	// Strace indicates that strace should be enabled.
	Strace bool `flag:"strace" toml:"strace" yaml:"strace"`

	// UserPages is the number of frames in the user pool.
	UserPages uint `flag:"user-pages" toml:"user-pages" yaml:"user-pages"`

	// KernelPages is the number of frames in the kernel pool.
	KernelPages uint `flag:"kernel-pages" toml:"kernel-pages" yaml:"kernel-pages"`

	// FSBytes bounds the total size of the files in the filesystem.
	FSBytes uint64 `flag:"fs-bytes" toml:"fs-bytes" yaml:"fs-bytes"`

	// Swap is where evicted dirty pages are stored.
	Swap SwapType `flag:"swap" toml:"swap" yaml:"swap"`

	// SwapFile is the path of the swap file when Swap is SwapFile.
	SwapFile string `flag:"swap-file" toml:"swap-file" yaml:"swap-file"`

	// SwapSlots is the number of pages the swap area holds.
	SwapSlots uint `flag:"swap-slots" toml:"swap-slots" yaml:"swap-slots"`

	// SwapLockTimeout bounds how long to wait for the swap file lock.
	SwapLockTimeout time.Duration `flag:"swap-lock-timeout" toml:"swap-lock-timeout" yaml:"swap-lock-timeout"`

	// MetricsFile receives a Prometheus export of the metrics when the
	// machine stops, if not empty.
	MetricsFile string `flag:"metrics-file" toml:"metrics-file" yaml:"metrics-file"`
}

func (c *Config) validate() error {
	if c.UserPages == 0 {
		return fmt.Errorf("user-pages must be positive")
	}
	if c.FSBytes == 0 || c.FSBytes > math.MaxInt64 {
		return fmt.Errorf("fs-bytes must be between 1 and %d", int64(math.MaxInt64))
	}
	switch c.LogFormat {
	case "text", "json", "logrus":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'logrus'", c.LogFormat)
	}
	switch c.Swap {
	case SwapFile:
		if c.SwapFile == "" {
			return fmt.Errorf("swap-file must be set when swap is %q", c.Swap)
		}
		fallthrough
	case SwapMemory:
		if c.SwapSlots == 0 {
			return fmt.Errorf("swap-slots must be positive when swap is %q", c.Swap)
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if name, ok := f.Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
		}
	}
}

// SwapType tells which swap area backs evicted pages.
type SwapType int

const (
	// SwapMemory keeps swapped pages in memory.
	SwapMemory SwapType = iota

	// SwapFile keeps swapped pages in a locked file.
	SwapFile

	// SwapNone disables swap. Evicting a dirty page fails.
	SwapNone
)

func swapTypePtr(v SwapType) *SwapType {
	return &v
}

// Set implements flag.Value. Set(String()) should be idempotent.
func (s *SwapType) Set(v string) error {
	switch v {
	case "memory":
		*s = SwapMemory
	case "file":
		*s = SwapFile
	case "none":
		*s = SwapNone
	default:
		return fmt.Errorf("invalid swap type %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (s *SwapType) Get() any {
	return *s
}

// String implements flag.Value.
func (s SwapType) String() string {
	switch s {
	case SwapMemory:
		return "memory"
	case SwapFile:
		return "file"
	case SwapNone:
		return "none"
	}
	panic(fmt.Sprintf("Invalid swap type %d", s))
}

// UnmarshalText implements encoding.TextUnmarshaler, for config files.
func (s *SwapType) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (s SwapType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

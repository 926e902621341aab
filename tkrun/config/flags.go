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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "TOML (.toml) or YAML (.yaml, .yml) file with default settings. Flags override the file.")

	// Debugging flags.
	flagSet.String("log", "", "file path where errors and logs are written.")
	flagSet.String("log-format", "text", "log format: text (default), json, or logrus.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "additional location for logs. The following variables are available: %TIMESTAMP%, %COMMAND%, %PID%.")
	flagSet.Bool("strace", false, "enable strace.")

	// Machine flags.
	flagSet.Uint("user-pages", 64, "number of physical frames available to user processes.")
	flagSet.Uint("kernel-pages", 16, "number of physical frames reserved for the kernel.")
	flagSet.Uint64("fs-bytes", 16<<20, "total bytes the in-memory filesystem may hold.")
	flagSet.Var(swapTypePtr(SwapMemory), "swap", "where evicted pages are kept: memory (default), file, none.")
	flagSet.String("swap-file", "", "path of the swap file, required with --swap=file.")
	flagSet.Uint("swap-slots", 256, "number of pages the swap area holds.")
	flagSet.Duration("swap-lock-timeout", time.Second, "how long to wait for another machine to release the swap file.")

	// Metrics flags.
	flagSet.String("metrics-file", "", "file where metrics are written in Prometheus text format when the machine stops.")
}

// NewFromFlags creates a new Config with values coming from command line flags
// and, if --config is set, from the config file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if conf.ConfigFile != "" {
		explicit := make(map[string]bool)
		flagSet.Visit(func(fl *flag.Flag) {
			explicit[fl.Name] = true
		})
		merged, err := conf.mergeFile(conf.ConfigFile, explicit)
		if err != nil {
			return nil, err
		}
		conf = merged
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
